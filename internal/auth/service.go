package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/studentlms/lms/internal/shared"
)

const (
	msgInvalidCredentials  = "Invalid credentials"
	msgInvalidRefreshToken = "Invalid refresh token"
	msgInvalidUser         = "Invalid user"
	msgInactiveUser        = "Invalid or inactive user"
	msgInvalidToken        = "Invalid token"
	msgTokenExpired        = "Token expired"

	// DefaultBcryptCost is the work factor used for password hashes.
	DefaultBcryptCost = 12

	decoyPassword = "lms-decoy-password"
)

// EventRecorder receives auth outcomes for metrics.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

// RegisterInput carries student registration fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	StudentID string
}

// Service orchestrates registration, login and the refresh-token lifecycle.
type Service struct {
	repo     Repository
	tokens   *TokenService
	registry SessionRegistry
	logger   *slog.Logger
	events   EventRecorder
	cost     int
	now      func() time.Time
	compare  func(hash, password []byte) error

	decoyOnce sync.Once
	decoy     []byte
}

// Option customises a Service.
type Option func(*Service)

// WithEventRecorder attaches a metrics recorder.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenService, registry SessionRegistry, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		tokens:   tokens,
		registry: registry,
		logger:   logger,
		cost:     DefaultBcryptCost,
		now:      time.Now,
		compare:  bcrypt.CompareHashAndPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a student account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Summary, error) {
	emailTaken, idTaken, err := s.repo.StudentConflicts(ctx, in.Email, in.StudentID)
	if err != nil {
		return Summary{}, err
	}
	if emailTaken {
		s.record("register", "conflict")
		return Summary{}, shared.NewConflictError("Email already registered")
	}
	if idTaken {
		s.record("register", "conflict")
		return Summary{}, shared.NewConflictError("Student ID already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Summary{}, fmt.Errorf("hash password: %w", err)
	}
	account, err := s.repo.CreateStudent(ctx, NewStudent{
		Email:        shared.NormalizeEmail(in.Email),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		StudentID:    in.StudentID,
		PasswordHash: string(hash),
	})
	if err != nil {
		return Summary{}, err
	}
	s.record("register", "success")
	s.logger.Info("student registered", slog.String("student_id", account.ExternalID), slog.String("email", account.Email))
	return account.Summary(), nil
}

// decoyHash is a bcrypt hash at the service cost, compared against when no
// usable account matches the login email.
func (s *Service) decoyHash() []byte {
	s.decoyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(decoyPassword), s.cost)
		if err != nil {
			s.logger.Warn("generate decoy password hash", slog.Any("error", err))
			return
		}
		s.decoy = hash
	})
	return s.decoy
}

// Login verifies credentials, issues a token pair and registers the refresh token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if account == nil || !account.IsActive {
		// Unknown and inactive accounts pay the same hashing cost as a wrong password.
		_ = s.compare(s.decoyHash(), []byte(password))
		s.record("login", "failure")
		return LoginResult{}, shared.NewAuthenticationError(msgInvalidCredentials)
	}
	if err := s.compare([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.record("login", "failure")
		return LoginResult{}, shared.NewAuthenticationError(msgInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(account.Principal())
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.registry.Store(ctx, account.ID, pair.RefreshToken, s.tokens.RefreshTTL()); err != nil {
		return LoginResult{}, err
	}
	if account.Role == shared.RoleStudent {
		now := s.now().UTC()
		if err := s.repo.TouchLastLogin(ctx, account.ID, now); err != nil {
			return LoginResult{}, err
		}
		account.LastLoginAt = &now
	}

	s.record("login", "success")
	s.logger.Info("user logged in", slog.String("user_id", account.ID), slog.String("type", string(account.Role)))
	return LoginResult{User: account.Summary(), Tokens: pair}, nil
}

// lookupByEmail searches students first, then teachers. A nil account with a
// nil error means no principal holds the email.
func (s *Service) lookupByEmail(ctx context.Context, email string) (*Account, error) {
	for _, role := range []shared.Role{shared.RoleStudent, shared.RoleTeacher} {
		account, err := s.repo.FindByEmail(ctx, role, email)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// Refresh exchanges the registered refresh token for a new pair. Only one of
// several concurrent refreshes presenting the same token succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.record("refresh", "failure")
		return TokenPair{}, tokenError(err)
	}

	current, err := s.registry.Current(ctx, claims.ID)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return TokenPair{}, err
	}
	if current == "" || current != refreshToken {
		s.record("refresh", "failure")
		return TokenPair{}, shared.NewAuthenticationError(msgInvalidRefreshToken)
	}

	account, err := s.loadActive(ctx, claims.Type, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if account == nil {
		if err := s.registry.Revoke(ctx, claims.ID); err != nil {
			s.logger.Warn("revoke refresh token", slog.String("user_id", claims.ID), slog.Any("error", err))
		}
		s.record("refresh", "failure")
		return TokenPair{}, shared.NewAuthenticationError(msgInvalidUser)
	}

	pair, err := s.tokens.IssuePair(account.Principal())
	if err != nil {
		return TokenPair{}, err
	}
	rotated, err := s.registry.Rotate(ctx, account.ID, refreshToken, pair.RefreshToken, s.tokens.RefreshTTL())
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		s.record("refresh", "failure")
		return TokenPair{}, shared.NewAuthenticationError(msgInvalidRefreshToken)
	}

	s.record("refresh", "success")
	s.logger.Info("token refreshed", slog.String("user_id", account.ID), slog.String("type", string(account.Role)))
	return pair, nil
}

// Logout acknowledges a logout. Outstanding tokens stay valid until expiry.
func (s *Service) Logout(ctx context.Context) {
	s.record("logout", "success")
	s.logger.InfoContext(ctx, "user logged out")
}

// LogoutAll revokes the caller's refresh token. An undecodable access token is
// ignored and reported as success.
func (s *Service) LogoutAll(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		s.record("logout_all", "ignored")
		return nil
	}
	if err := s.registry.Revoke(ctx, claims.ID); err != nil {
		return err
	}
	s.record("logout_all", "success")
	s.logger.Info("user logged out from all devices", slog.String("user_id", claims.ID))
	return nil
}

// WhoAmI returns the current profile of the access token's principal.
func (s *Service) WhoAmI(ctx context.Context, accessToken string) (Summary, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return Summary{}, tokenError(err)
	}
	account, err := s.loadActive(ctx, claims.Type, claims.ID)
	if err != nil {
		return Summary{}, err
	}
	if account == nil {
		return Summary{}, shared.NewAuthenticationError(msgInvalidUser)
	}
	return account.Summary(), nil
}

// Authenticate resolves an access token into a principal backed by an active account.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (shared.Principal, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return shared.Principal{}, tokenError(err)
	}
	account, err := s.loadActive(ctx, claims.Type, claims.ID)
	if err != nil {
		return shared.Principal{}, err
	}
	if account == nil {
		return shared.Principal{}, shared.NewAuthenticationError(msgInactiveUser)
	}
	p := claims.Principal()
	p.StudentID, p.TeacherID = "", ""
	switch account.Role {
	case shared.RoleStudent:
		p.StudentID = account.ExternalID
	case shared.RoleTeacher:
		p.TeacherID = account.ExternalID
	}
	return p, nil
}

// loadActive returns nil without error when the account is missing or inactive.
func (s *Service) loadActive(ctx context.Context, role shared.Role, id string) (*Account, error) {
	account, err := s.repo.FindByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, nil
	}
	return account, nil
}

func (s *Service) record(event, outcome string) {
	if s.events != nil {
		s.events.AuthEvent(event, outcome)
	}
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return shared.NewAuthenticationError(msgTokenExpired)
	case errors.Is(err, ErrTokenInvalid):
		return shared.NewAuthenticationError(msgInvalidToken)
	default:
		return err
	}
}
