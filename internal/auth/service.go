package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/licitacoes/internal/logging"
)

// InvalidCredsMessage is shown to the user on a failed login.
const InvalidCredsMessage = "Usuário ou senha inválidos."

var (
	ErrInvalidCreds = errors.New("invalid credentials")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(username, password string) bool
}

// CredentialStore verifies against bcrypt hashes keyed by username.
type CredentialStore struct {
	hashes map[string][]byte
}

func NewCredentialStore(users map[string]string) *CredentialStore {
	s := &CredentialStore{hashes: make(map[string][]byte, len(users))}
	for name, hash := range users {
		name = strings.TrimSpace(name)
		if name == "" || hash == "" {
			continue
		}
		s.hashes[name] = []byte(hash)
	}
	return s
}

func (s *CredentialStore) Len() int { return len(s.hashes) }

func (s *CredentialStore) Verify(username, password string) bool {
	hash, ok := s.hashes[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// HashPassword returns a bcrypt hash suitable for the auth.users config.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}
	return string(hash), nil
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Service issues session tokens for verified users.
type Service struct {
	verifier Verifier
	secret   []byte
	ttl      time.Duration
}

// NewService uses secret when non-empty, otherwise JWT_SECRET or an
// ephemeral random secret.
func NewService(verifier Verifier, secret string) (*Service, error) {
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		var err error
		key, err = jwtSecretFromEnv()
		if err != nil {
			return nil, err
		}
	}
	return &Service{verifier: verifier, secret: key, ttl: 24 * time.Hour}, nil
}

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		logging.Log.Warn("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

func (s *Service) Login(req LoginRequest) (*AuthResponse, error) {
	if !s.verifier.Verify(req.Username, req.Password) {
		return nil, ErrInvalidCreds
	}

	token, err := s.generateToken(req.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Username: req.Username}, nil
}

func (s *Service) generateToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates a token and returns its subject.
func (s *Service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid or expired token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}
