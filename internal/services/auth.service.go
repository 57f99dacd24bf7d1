package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const tokenIssuer = "usage-applet"

// AuthService issues and checks the tokens that gate the snapshot stream
type AuthService struct {
	logger      *zap.Logger
	secretKey   []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

// StreamClaims identifies the shell client holding a token
type StreamClaims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// NewAuthService creates an AuthService. An empty secretKey is loaded from
// keyFile, or generated and persisted there on first use.
func NewAuthService(secretKey, keyFile string, tokenExpiry time.Duration, logger *zap.Logger) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		var err error
		secretKey, err = loadOrCreateSecret(keyFile, logger)
		if err != nil {
			return nil, err
		}
	}

	// HMAC-SHA256 wants at least 32 bytes; short keys are stretched
	// deterministically.
	key := []byte(secretKey)
	if len(key) < 32 {
		logger.Warn("secret key shorter than 32 bytes, deriving key with sha256", zap.Int("length", len(key)))
		sum := sha256.Sum256(key)
		key = sum[:]
	}

	if tokenExpiry <= 0 {
		tokenExpiry = 90 * 24 * time.Hour
	}

	return &AuthService{
		logger:      logger,
		secretKey:   key,
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}, nil
}

// DefaultKeyFile returns the path the generated secret is persisted to
func DefaultKeyFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "usage-applet", "secret-key")
}

func loadOrCreateSecret(keyFile string, logger *zap.Logger) (string, error) {
	if keyFile == "" {
		keyFile = DefaultKeyFile()
	}

	if data, err := os.ReadFile(keyFile); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		logger.Info("loaded persisted secret key", zap.String("path", keyFile))
		return strings.TrimSpace(string(data)), nil
	}

	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generating secret key: %w", err)
	}
	secret := hex.EncodeToString(randomBytes)

	if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
		logger.Warn("could not persist secret key", zap.String("path", keyFile), zap.Error(err))
		return secret, nil
	}
	if err := os.WriteFile(keyFile, []byte(secret), 0o600); err != nil {
		logger.Warn("could not persist secret key", zap.String("path", keyFile), zap.Error(err))
		return secret, nil
	}
	logger.Info("generated and persisted secret key", zap.String("path", keyFile))
	return secret, nil
}

// GenerateToken signs a token for the named client
func (a *AuthService) GenerateToken(client string) (string, error) {
	now := a.now()
	claims := StreamClaims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

// ValidateToken verifies tokenString and returns its claims
func (a *AuthService) ValidateToken(tokenString string) (*StreamClaims, error) {
	claims := &StreamClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// TokenExpiry returns how long newly issued tokens stay valid
func (a *AuthService) TokenExpiry() time.Duration {
	return a.tokenExpiry
}
