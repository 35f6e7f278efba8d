package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/models"
	"circulation/internal/repositories"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of a staff access token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (token string, user *models.User, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	users          repositories.UserRepository
	jwtSecret      []byte
	accessTokenTTL time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func NewAuthService(users repositories.UserRepository, cfg *config.Config, logger *slog.Logger) AuthService {
	return &authService{
		users:          users,
		jwtSecret:      []byte(cfg.JWTSecret),
		accessTokenTTL: cfg.AccessTokenTTL,
		logger:         logger,
		now:            time.Now,
	}
}

// Login checks the password against the stored bcrypt hash and issues an HS256
// access token. Unknown usernames still pay for one bcrypt comparison.
func (s *authService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, internalError(err)
		}
		_ = VerifyPassword(dummyHash(), password)
		s.logger.Info("login rejected", "username", username, "reason", "unknown user")
		return "", nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", "username", username, "reason", "password mismatch")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return "", nil, internalError(fmt.Errorf("sign token: %w", err))
	}
	s.logger.Info("login succeeded", "user_id", user.ID, "username", user.Username)
	return token, user, nil
}

func (s *authService) generateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash stored for a staff account.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hashedPassword, providedPassword string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(providedPassword))
}

var dummyHash = sync.OnceValue(func() string {
	hashed, _ := HashPassword("not-a-real-password")
	return hashed
})
