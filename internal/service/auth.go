package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quothlabs/quoth/internal/adapter/identity"
	"github.com/quothlabs/quoth/internal/config"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/database"
)

// TokenAudience is the required aud claim on internally-signed tokens.
const TokenAudience = "mcp-server"

// AuthRecord is the verified identity attached to every request. It
// carries the project binding resolved at verification time; account
// switching replaces the binding per connection, not the record.
type AuthRecord struct {
	UserID         string
	Email          string
	ProjectID      string
	OrganizationID string
	Role           project.Role
	External       bool
	ConnectionID   string
}

// internalClaims is the payload of an internally-signed HS256 token.
// sub is the bound project id.
type internalClaims struct {
	Subject  string `json:"sub"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// externalClaims is the subset of provider-token claims Quoth reads
// after the provider has validated the token. Signed claims are
// authoritative for project binding.
type externalClaims struct {
	ProjectID string `json:"project_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService verifies bearer tokens through two paths: internally
// signed HS256 project tokens, and external OAuth-style tokens
// validated by the identity provider.
type AuthService struct {
	store    database.Store
	identity *identity.Client
	cfg      config.Auth
	secret   []byte
}

// NewAuthService creates the dual-path verifier. identityClient may be
// nil; external tokens are then rejected.
func NewAuthService(store database.Store, identityClient *identity.Client, cfg config.Auth) *AuthService {
	return &AuthService{
		store:    store,
		identity: identityClient,
		cfg:      cfg,
		secret:   []byte(cfg.JWTSecret),
	}
}

// Verify authenticates a raw bearer token. Internal verification runs
// first; a token that is not internally signed falls through to the
// identity provider.
func (s *AuthService) Verify(ctx context.Context, token string) (*AuthRecord, error) {
	if token == "" {
		return nil, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthenticated)
	}

	if rec, err := s.verifyInternal(ctx, token); err == nil {
		return rec, nil
	} else if !errors.Is(err, errNotInternal) {
		return nil, err
	}

	return s.verifyExternal(ctx, token)
}

// errNotInternal marks a token that is not ours, so verification can
// fall through to the provider path.
var errNotInternal = errors.New("not an internal token")

func (s *AuthService) verifyInternal(ctx context.Context, token string) (*AuthRecord, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return nil, errNotInternal
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	expected := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return nil, errNotInternal
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode token payload: %w", domain.ErrUnauthenticated)
	}

	var claims internalClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", domain.ErrUnauthenticated)
	}

	tolerance := int64(s.cfg.ClockTolerance.Seconds())
	now := time.Now().Unix()
	if claims.Expiry != 0 && now > claims.Expiry+tolerance {
		return nil, fmt.Errorf("token expired: %w", domain.ErrUnauthenticated)
	}
	if claims.IssuedAt != 0 && claims.IssuedAt > now+tolerance {
		return nil, fmt.Errorf("token issued in the future: %w", domain.ErrUnauthenticated)
	}
	if claims.Issuer != s.cfg.AppURL {
		return nil, fmt.Errorf("unexpected token issuer: %w", domain.ErrUnauthenticated)
	}
	if claims.Audience != TokenAudience {
		return nil, fmt.Errorf("unexpected token audience: %w", domain.ErrUnauthenticated)
	}
	role := project.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", claims.Role, domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing project binding: %w", domain.ErrUnauthenticated)
	}

	p, err := s.store.GetProject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("bound project missing: %w", domain.ErrUnauthenticated)
		}
		return nil, err
	}

	return &AuthRecord{
		UserID:         claims.UserID,
		ProjectID:      p.ID,
		OrganizationID: p.OrganizationID,
		Role:           role,
		ConnectionID:   ConnectionID(token),
	}, nil
}

func (s *AuthService) verifyExternal(ctx context.Context, token string) (*AuthRecord, error) {
	if s.identity == nil {
		return nil, fmt.Errorf("external tokens not accepted: %w", domain.ErrUnauthenticated)
	}

	user, err := s.identity.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	rec := &AuthRecord{
		UserID:       user.ID,
		Email:        user.Email,
		External:     true,
		ConnectionID: ConnectionID(token),
	}

	// The provider has already validated the signature; read the project
	// binding from the token's own claims.
	var claims externalClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ProjectID != "" {
		p, err := s.store.GetProject(ctx, claims.ProjectID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("bound project missing: %w", domain.ErrUnauthenticated)
			}
			return nil, err
		}
		rec.ProjectID = p.ID
		rec.OrganizationID = p.OrganizationID
		if role := project.Role(claims.Role); role.Valid() {
			rec.Role = role
		} else {
			rec.Role = s.membershipRole(ctx, p.ID, user.ID)
		}
		return rec, nil
	}

	// No project claim: fall back to the user's default project.
	stored, err := s.store.GetUser(ctx, user.ID)
	if err != nil || stored.DefaultProjectID == "" {
		return nil, fmt.Errorf("token carries no project binding: %w", domain.ErrUnauthenticated)
	}
	p, err := s.store.GetProject(ctx, stored.DefaultProjectID)
	if err != nil {
		return nil, fmt.Errorf("default project missing: %w", domain.ErrUnauthenticated)
	}
	rec.ProjectID = p.ID
	rec.OrganizationID = p.OrganizationID
	rec.Role = s.membershipRole(ctx, p.ID, user.ID)
	return rec, nil
}

// membershipRole resolves the user's role on a project, defaulting to
// viewer when no membership row exists.
func (s *AuthService) membershipRole(ctx context.Context, projectID, userID string) project.Role {
	m, err := s.store.GetMember(ctx, projectID, userID)
	if err != nil {
		return project.RoleViewer
	}
	return m.Role
}

// MintProjectToken signs an internal HS256 token binding a user to a
// project with a role. Used by provisioning and tests.
func (s *AuthService) MintProjectToken(projectID, userID string, role project.Role, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("invalid role %q: %w", role, domain.ErrValidation)
	}
	now := time.Now()
	claims := internalClaims{
		Subject:  projectID,
		UserID:   userID,
		Role:     string(role),
		Issuer:   s.cfg.AppURL,
		Audience: TokenAudience,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64URLEncode(mac.Sum(nil)), nil
}

// ConnectionID derives the stable per-token connection identity used
// for session tracking.
func ConnectionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// generateID produces a UUID v4 string.
func generateID() string {
	return uuid.NewString()
}
