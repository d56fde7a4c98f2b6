package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 12 * time.Hour

var ErrUnauthorized = errors.New("invalid credentials")

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService guards the console with a single operator account.
type AuthService struct {
	AdminUser    string
	PasswordHash string
	Secret       []byte
	now          func() time.Time
}

func NewAuthService(adminUser, passwordHash, secret string) *AuthService {
	return &AuthService{
		AdminUser:    adminUser,
		PasswordHash: passwordHash,
		Secret:       []byte(secret),
		now:          time.Now,
	}
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (s *AuthService) Login(req LoginRequest) (LoginResponse, error) {
	if s.AdminUser == "" || s.PasswordHash == "" {
		return LoginResponse{}, ErrUnauthorized
	}
	if req.Username != s.AdminUser {
		return LoginResponse{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResponse{}, ErrUnauthorized
	}
	return s.Issue(req.Username)
}

// Issue signs an HS256 session token for username.
func (s *AuthService) Issue(username string) (LoginResponse, error) {
	now := s.now()
	expires := now.Add(sessionTTL)
	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return LoginResponse{Token: token, Username: username, ExpiresAt: expires}, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
