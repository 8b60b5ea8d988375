// Package auth implements token issuance and verification for the backend.
//
// Tokens are JWTs signed with an asymmetric Ed25519 key pair. Every token
// carries a "kind" claim ("access" or "refresh"); REST middleware and the
// socket handshake accept access tokens only. Refresh tokens are exchanged at
// the auth endpoints and are the only token persisted (in a user_sessions
// row).
package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/decidr/decidr-backend/internal/config"
	"github.com/decidr/decidr-backend/internal/domain"
)

// Token kinds carried in the "kind" claim.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// Verification errors. Handlers map all of them to an unauthorized response;
// the distinction matters for logs and tests.
var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongKind     = errors.New("wrong token kind")
	ErrNoPrivateKey  = errors.New("signing requires a private key")
	ErrNoEd25519Seed = errors.New("key file does not contain an Ed25519 key")
)

// Claims is the JWT claim set used for both token kinds.
type Claims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Kind          string `json:"kind"`
	jwt.RegisteredClaims
}

// Identity is the verified principal bound to a session or request.
type Identity struct {
	UserID        string
	Email         string
	EmailVerified bool
}

// Manager signs and verifies tokens. The private key may be nil for
// verify-only deployments.
type Manager struct {
	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager loads the Ed25519 key pair from the configured PEM files.
func NewManager(cfg config.JWTConfig) (*Manager, error) {
	pub, err := loadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}
	priv, err := loadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return &Manager{
		priv:       priv,
		pub:        pub,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

// NewManagerFromKeys builds a Manager from in-memory keys. Used by tests and
// by the dev-mode key bootstrap.
func NewManagerFromKeys(priv ed25519.PrivateKey, pub ed25519.PublicKey, cfg config.JWTConfig) *Manager {
	return &Manager{
		priv:       priv,
		pub:        pub,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
}

// SignAccessToken issues an access token for the user.
func (m *Manager) SignAccessToken(u *domain.User) (string, error) {
	return m.sign(Claims{
		UserID:        u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Kind:          TokenKindAccess,
	}, m.accessTTL)
}

// SignRefreshToken issues a refresh token for the user id.
func (m *Manager) SignRefreshToken(userID string) (string, error) {
	return m.sign(Claims{UserID: userID, Kind: TokenKindRefresh}, m.refreshTTL)
}

// RefreshTokenTTL reports how long issued refresh tokens live; the session
// row expiry mirrors it.
func (m *Manager) RefreshTokenTTL() time.Duration { return m.refreshTTL }

func (m *Manager) sign(claims Claims, ttl time.Duration) (string, error) {
	if m.priv == nil {
		return "", ErrNoPrivateKey
	}
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(m.priv)
}

// VerifyToken parses and validates a token of any kind.
func (m *Manager) VerifyToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(*jwt.Token) (any, error) { return m.pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken validates a token and rejects any kind other than
// "access". This is the capability consumed by the REST middleware and the
// socket handshake.
func (m *Manager) VerifyAccessToken(tokenStr string) (*Identity, error) {
	claims, err := m.VerifyToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindAccess {
		return nil, ErrWrongKind
	}
	return &Identity{
		UserID:        claims.UserID,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// VerifyRefreshToken validates a token and rejects any kind other than
// "refresh".
func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	claims, err := m.VerifyToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindRefresh {
		return nil, ErrWrongKind
	}
	return claims, nil
}

// ---- key loading ----

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrNoEd25519Seed
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNoEd25519Seed
	}
	return priv, nil
}

func loadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrNoEd25519Seed
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNoEd25519Seed
	}
	return pub, nil
}

// EnsureDevKeyPair generates an Ed25519 key pair at the configured paths when
// neither file exists yet. Intended for development; production deployments
// provision keys out of band.
func EnsureDevKeyPair(privPath, pubPath string) error {
	if _, err := os.Stat(privPath); err == nil {
		return nil
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return err
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return err
	}
	return os.WriteFile(pubPath, pubPEM, 0o644)
}
