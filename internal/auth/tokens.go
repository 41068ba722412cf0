package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/studentlms/lms/internal/shared"
)

const (
	DefaultIssuer     = "student-lms"
	DefaultAudience   = "student-lms-users"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrConfiguration is returned when signing secrets are missing.
	ErrConfiguration = errors.New("auth: jwt secrets not configured")
	// ErrTokenInvalid covers malformed, mis-signed or mis-scoped tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// TokenConfig configures the token service.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Type      shared.Role `json:"type"`
	StudentID string      `json:"studentId,omitempty"`
	TeacherID string      `json:"teacherId,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims back into a principal.
func (c *AccessClaims) Principal() shared.Principal {
	return shared.Principal{ID: c.ID, Email: c.Email, Role: c.Type, StudentID: c.StudentID, TeacherID: c.TeacherID}
}

// RefreshClaims is the payload of a refresh token.
type RefreshClaims struct {
	ID   string      `json:"id"`
	Type shared.Role `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access and refresh tokens. It holds no
// mutable state.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService constructs a TokenService, applying defaults for zero values.
func NewTokenService(cfg TokenConfig) *TokenService {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	return &TokenService{cfg: cfg, now: time.Now}
}

// RefreshTTL exposes the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.cfg.RefreshTTL
}

// IssuePair signs a new access/refresh pair for p.
func (s *TokenService) IssuePair(p shared.Principal) (TokenPair, error) {
	if s.cfg.AccessSecret == "" || s.cfg.RefreshSecret == "" {
		return TokenPair{}, ErrConfiguration
	}
	now := s.now().UTC()

	access := AccessClaims{
		ID:               p.ID,
		Email:            p.Email,
		Type:             p.Role,
		StudentID:        p.StudentID,
		TeacherID:        p.TeacherID,
		RegisteredClaims: s.registered(p.ID, now, s.cfg.AccessTTL),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}

	refresh := RefreshClaims{
		ID:               p.ID,
		Type:             p.Role,
		RegisteredClaims: s.registered(p.ID, now, s.cfg.RefreshTTL),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	if s.cfg.AccessSecret == "" {
		return nil, ErrConfiguration
	}
	claims := &AccessClaims{}
	if err := s.parse(token, s.cfg.AccessSecret, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" || !claims.Type.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	if s.cfg.RefreshSecret == "" {
		return nil, ErrConfiguration
	}
	claims := &RefreshClaims{}
	if err := s.parse(token, s.cfg.RefreshSecret, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" || !claims.Type.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.cfg.Issuer,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *TokenService) parse(token, secret string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
