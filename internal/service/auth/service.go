package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/pkg/auth"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/security"
)

const (
	defaultLanguage = "en"
	defaultTheme    = "light"
)

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
	}
}

// Register creates a patient account. Role is never taken from the request.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	cin := strings.TrimSpace(req.CIN)

	if err := security.CheckStrength(req.Password); err != nil {
		return nil, errors.Validation(err.Error(), nil)
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, errors.Conflict("Email already registered", nil)
	} else if !errors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		CIN:          cin,
		Email:        email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         model.RoleUser,
		Gender:       req.Gender,
		Phone:        req.Phone,
		Language:     defaultLanguage,
		Theme:        defaultTheme,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Email was checked above, so a conflict here is the CIN or a racing
		// registration.
		if errors.Is(err, errors.ErrConflict) {
			return nil, errors.Conflict("CIN already registered", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", user.ID.String()).Msg("User registered")
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Unauthenticated(fmt.Errorf("invalid credentials"))
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, errors.Unauthenticated(fmt.Errorf("invalid credentials"))
	}

	return s.generateTokens(user)
}

func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, errors.Unauthenticated(err)
	}

	// A banned user no longer exists and cannot refresh.
	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Unauthenticated(err)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return s.generateTokens(user)
}

// Authenticate resolves a bearer token to the caller. The role comes from
// the store, not from the token, so role changes apply to live sessions.
func (s *Service) Authenticate(ctx context.Context, token string) (model.Actor, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return model.Actor{}, errors.Unauthenticated(err)
	}

	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if errors.IsNotFound(err) {
			return model.Actor{}, errors.Unauthenticated(err)
		}
		return model.Actor{}, fmt.Errorf("failed to resolve user: %w", err)
	}
	return user.Actor(), nil
}

func (s *Service) generateTokens(user *model.User) (*model.TokenResponse, error) {
	accessToken, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	refreshToken, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtSvc.AccessTTL().Seconds()),
		User:         user,
	}, nil
}
