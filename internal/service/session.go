package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/database"
)

// Session is per-connection in-memory state: the active project and the
// caller's accessible projects. Never persisted.
type Session struct {
	ConnectionID      string
	UserID            string
	ActiveProjectID   string
	ActiveRole        project.Role
	OrganizationID    string
	AvailableProjects []project.Membership
	CreatedAt         time.Time
	LastUsedAt        time.Time
}

// SessionService maps connection ids to sessions. The active project is
// the effective tenant for every tool call on that connection.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    database.Store
	maxIdle  time.Duration
	logger   *slog.Logger
}

// NewSessionService creates the session map.
func NewSessionService(store database.Store, maxIdle time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		sessions: make(map[string]*Session),
		store:    store,
		maxIdle:  maxIdle,
		logger:   logger,
	}
}

// Ensure returns the session for rec's connection, creating it on first
// use. The initial active project is the token's bound project; the
// available set is loaded from project memberships.
func (s *SessionService) Ensure(ctx context.Context, rec *AuthRecord) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[rec.ConnectionID]
	s.mu.RUnlock()
	if ok {
		s.mu.Lock()
		sess.LastUsedAt = time.Now()
		s.mu.Unlock()
		return sess, nil
	}

	memberships, err := s.store.ListMemberships(ctx, rec.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	now := time.Now()
	sess = &Session{
		ConnectionID:      rec.ConnectionID,
		UserID:            rec.UserID,
		ActiveProjectID:   rec.ProjectID,
		ActiveRole:        rec.Role,
		OrganizationID:    rec.OrganizationID,
		AvailableProjects: memberships,
		CreatedAt:         now,
		LastUsedAt:        now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[rec.ConnectionID]; ok {
		existing.LastUsedAt = now
		return existing, nil
	}
	s.sessions[rec.ConnectionID] = sess
	return sess, nil
}

// ListAccounts returns the session's account list with the active one
// marked.
func (s *SessionService) ListAccounts(ctx context.Context, rec *AuthRecord) (active string, accounts []project.Membership, err error) {
	sess, err := s.Ensure(ctx, rec)
	if err != nil {
		return "", nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.ActiveProjectID, sess.AvailableProjects, nil
}

// Switch changes the connection's active project. The target must be in
// the caller's access set; the role becomes that membership's role.
func (s *SessionService) Switch(ctx context.Context, rec *AuthRecord, projectID string) (*Session, error) {
	sess, err := s.Ensure(ctx, rec)
	if err != nil {
		return nil, err
	}

	var target *project.Membership
	s.mu.RLock()
	for i := range sess.AvailableProjects {
		m := &sess.AvailableProjects[i]
		if m.ProjectID == projectID || m.ProjectSlug == projectID {
			target = m
			break
		}
	}
	s.mu.RUnlock()
	if target == nil {
		return nil, fmt.Errorf("project %q is not in your account list: %w", projectID, domain.ErrNotFound)
	}

	p, err := s.store.GetProject(ctx, target.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ActiveProjectID = p.ID
	sess.ActiveRole = target.Role
	sess.OrganizationID = p.OrganizationID
	sess.LastUsedAt = time.Now()
	return sess, nil
}

// Tenant is the effective scope for one tool call.
type Tenant struct {
	ProjectID      string
	OrganizationID string
	Role           project.Role
	UserID         string
}

// Active returns the effective tenant for a connection, creating the
// session from the token binding on first use.
func (s *SessionService) Active(ctx context.Context, rec *AuthRecord) (Tenant, error) {
	sess, err := s.Ensure(ctx, rec)
	if err != nil {
		return Tenant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Tenant{
		ProjectID:      sess.ActiveProjectID,
		OrganizationID: sess.OrganizationID,
		Role:           sess.ActiveRole,
		UserID:         sess.UserID,
	}, nil
}

// Remove drops a session on disconnect.
func (s *SessionService) Remove(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, connectionID)
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartReaper sweeps idle sessions periodically until ctx is cancelled.
func (s *SessionService) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := s.reap()
				if n > 0 {
					s.logger.Debug("reaped idle sessions", "count", n)
				}
			}
		}
	}()
}

func (s *SessionService) reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.maxIdle)
	n := 0
	for id, sess := range s.sessions {
		if sess.LastUsedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
