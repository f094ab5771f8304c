package app

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/asepsopiyan/keris-lite/internal/pkg/jwtutil"
)

var (
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrAdminDisabled     = errors.New("admin login is not configured")
)

// AuthService issues tokens for the single operator account that may run
// ingestion and reindexing over HTTP.
type AuthService struct {
	username      string
	passwordHash  string
	jwtSecret     string
	jwtExpiration time.Duration
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthService(username, passwordHash, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		username:      username,
		passwordHash:  passwordHash,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	if s.passwordHash == "" {
		return nil, ErrAdminDisabled
	}
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidCredential
	}

	// Always run bcrypt so a wrong username costs the same as a wrong password.
	hashErr := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password))
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 || hashErr != nil {
		return nil, ErrInvalidCredential
	}

	expiresAt := time.Now().Add(s.jwtExpiration)
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt}, nil
}

// HashPassword produces a value suitable for auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password failed: %w", err)
	}
	return string(hash), nil
}
