package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/fitreserve/internal/auth"
	"github.com/Shivanand-hulikatti/fitreserve/internal/clock"
	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
	"github.com/Shivanand-hulikatti/fitreserve/internal/repository"
)

// AuthService registers accounts and turns credentials into tokens and
// tokens back into users.
type AuthService struct {
	users      repository.UserStore
	tokens     *auth.TokenIssuer
	bcryptCost int
	clock      clock.Clock
	log        zerolog.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(users repository.UserStore, tokens *auth.TokenIssuer, bcryptCost int, clk clock.Clock, log zerolog.Logger) *AuthService {
	if clk == nil {
		clk = clock.System()
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		clock:      clk,
		log:        log.With().Str("component", "auth").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a member account and returns it with a fresh token.
// Admin accounts are only created through EnsureAdmin.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" {
		return nil, invalidInput("name is required")
	}
	if email == "" {
		return nil, invalidInput("email is required")
	}
	if req.Password == "" {
		return nil, invalidInput("password is required")
	}

	user, err := s.createUser(ctx, name, email, req.Password, model.RoleMember)
	if err != nil {
		return nil, err
	}
	return s.respond(user)
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.log.Debug().Str("user_id", user.ID).Msg("password mismatch")
		return nil, ErrInvalidCredentials
	}
	return s.respond(user)
}

// Me returns the account behind userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Authenticate resolves a bearer token to its user. Token failures are
// returned as auth.ErrInvalidToken or auth.ErrTokenExpired; a token whose
// user no longer exists is ErrInvalidToken too.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account if no account uses email.
// An existing account is returned untouched.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			s.log.Warn().Str("email", email).Msg("bootstrap admin email belongs to a member account")
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("ensure admin: %w", err)
	}

	user, err := s.createUser(ctx, strings.TrimSpace(name), email, password, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Str("email", email).Msg("bootstrap admin created")
	return user, nil
}

// maxPasswordBytes is bcrypt's input limit. The request validator counts
// runes, so multi-byte passwords can pass it and still be too long.
const maxPasswordBytes = 72

func (s *AuthService) createUser(ctx context.Context, name, email, password string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("create user: unknown role %q", role)
	}
	if len(password) > maxPasswordBytes {
		return nil, invalidInput("password must be at most 72 bytes")
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) respond(user *model.User) (*model.AuthResponse, error) {
	token, err := s.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{User: user, Token: token}, nil
}
