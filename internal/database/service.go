package database

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned by Login for a wrong or unset password
var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminSubject is the token subject issued by password login
const AdminSubject = "admin"

// AuthService issues and validates admin session tokens
type AuthService struct {
	jwtSecret     []byte
	adminPassword string
	tokenTTL      time.Duration
	now           func() time.Time
}

// NewAuthService creates an auth service. An empty adminPassword disables Login.
func NewAuthService(jwtSecret, adminPassword string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		jwtSecret:     []byte(jwtSecret),
		adminPassword: adminPassword,
		tokenTTL:      tokenTTL,
		now:           time.Now,
	}
}

// Login exchanges the admin password for a token
func (s *AuthService) Login(password string) (string, error) {
	if s.adminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) != 1 {
		return "", ErrInvalidCredentials
	}
	return s.GenerateAdminToken(AdminSubject)
}

// GenerateAdminToken generates an HS256 token for subject
func (s *AuthService) GenerateAdminToken(subject string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": "admin",
		"exp":  now.Add(s.tokenTTL).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateAdminToken validates a token and returns its subject
func (s *AuthService) ValidateAdminToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	if role, _ := claims["role"].(string); role != "admin" {
		return "", fmt.Errorf("token is not an admin token")
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return "", fmt.Errorf("sub not found in token")
	}
	return subject, nil
}
