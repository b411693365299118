package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/crosslock/darkpool/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TraderStore is the slice of persistence the auth service needs.
type TraderStore interface {
	CreateTrader(ctx context.Context, name, passwordHash string) (*models.Trader, error)
	GetTraderByName(ctx context.Context, name string) (*models.Trader, error)
}

// Service handles trader registration and authentication. The trader
// name it recovers from a token is the trusted caller identity passed
// to the book.
type Service struct {
	Store  TraderStore
	Secret []byte
}

// NewService creates a new auth service
func NewService(store TraderStore, secret []byte) *Service {
	return &Service{Store: store, Secret: secret}
}

// Register creates a new trader with a hashed password
func (s *Service) Register(ctx context.Context, name, password string) (*models.Trader, error) {
	if name == "" {
		return nil, fmt.Errorf("trader name cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(name) > 50 {
		return nil, fmt.Errorf("trader name too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	trader, err := s.Store.CreateTrader(ctx, name, string(hashedPassword))
	if err != nil {
		return nil, fmt.Errorf("failed to create trader: %w", err)
	}
	return trader, nil
}

// Login verifies credentials and generates a JWT
func (s *Service) Login(ctx context.Context, name, password string) (string, error) {
	trader, err := s.Store.GetTraderByName(ctx, name)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(trader.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"trader": trader.Name,
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.Secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// TraderFromToken extracts the trader identity from a JWT
func (s *Service) TraderFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	name, ok := claims["trader"].(string)
	if !ok || name == "" {
		return "", fmt.Errorf("token missing trader claim")
	}
	return name, nil
}
