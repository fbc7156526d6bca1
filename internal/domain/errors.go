// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a unique-constraint violation (slug, agent name).
var ErrConflict = errors.New("conflict: resource already exists")

// ErrValidation indicates input that fails schema or size limits.
var ErrValidation = errors.New("validation failed")

// ErrUnauthenticated indicates a missing or invalid bearer token.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden indicates the caller's role does not permit the operation.
var ErrForbidden = errors.New("forbidden")

// ErrRateLimited indicates an exhausted request-rate window.
var ErrRateLimited = errors.New("rate limited")

// ErrBackend indicates a transient failure of an external collaborator
// (embedding provider, reranker, database). Callers may retry or degrade.
var ErrBackend = errors.New("backend unavailable")
