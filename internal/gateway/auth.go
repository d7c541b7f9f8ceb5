package gateway

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/golang-jwt/jwt"
)

const (
	AlgRS256 = "RS256"
	AlgHS256 = "HS256"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidIssuer   = errors.New("invalid token issuer")
	ErrInvalidAudience = errors.New("invalid token audience")
	ErrTokenExpired    = errors.New("token expired or not yet valid")
	ErrInvalidSubject  = errors.New("token has no user id")
)

type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.UserID, error)
}

type JWTConfig struct {
	Alg           string
	Secret        string
	PublicKeyPath string
	Issuer        string // пусто - не проверяется
	Audience      string // пусто - не проверяется
	ClockSkew     time.Duration
}

type AccessClaims struct {
	jwt.StandardClaims        // Issuer, Audience, ExpiresAt, NotBefore, IssuedAt, Subject
	UserID             string `json:"userId,omitempty"`
}

// JWTVerifier проверяет bearer-токены, выпущенные внешним auth-сервисом.
type JWTVerifier struct {
	alg       string
	key       any
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	v := &JWTVerifier{
		alg:       strings.ToUpper(cfg.Alg),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: cfg.ClockSkew,
		now:       time.Now,
	}
	switch v.alg {
	case AlgHS256:
		if cfg.Secret == "" {
			return nil, errors.New("jwt: HS256 requires a secret")
		}
		v.key = []byte(cfg.Secret)
	case AlgRS256, "":
		v.alg = AlgRS256
		pub, err := LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("jwt: load public key: %w", err)
		}
		v.key = pub
	default:
		return nil, fmt.Errorf("jwt: unsupported alg %q", cfg.Alg)
	}
	return v, nil
}

// NewRSAVerifier - для случаев, когда ключ уже загружен.
func NewRSAVerifier(pub *rsa.PublicKey, issuer, audience string, clockSkew time.Duration) *JWTVerifier {
	return &JWTVerifier{
		alg:       AlgRS256,
		key:       pub,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

func (v *JWTVerifier) Authenticate(_ context.Context, credential string) (domain.UserID, error) {
	claims, err := v.ParseAndValidate(strings.TrimSpace(credential))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	uid, err := UserIDFromClaims(claims)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	return uid, nil
}

func (v *JWTVerifier) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	claims := &AccessClaims{}
	// exp/nbf проверяем сами, с допуском clockSkew
	parser := &jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.alg {
			return nil, ErrInvalidToken
		}
		return v.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, ErrInvalidAudience
	}

	now := v.now()
	exp := time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)
	if claims.ExpiresAt == 0 || now.After(exp) {
		return nil, ErrTokenExpired
	}
	if claims.NotBefore != 0 {
		nbf := time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)
		if now.Before(nbf) {
			return nil, ErrTokenExpired
		}
	}

	return claims, nil
}

// UserIDFromClaims: sub, либо userId (как выпускает CRUD-бэкенд).
func UserIDFromClaims(claims *AccessClaims) (domain.UserID, error) {
	if claims == nil {
		return "", ErrInvalidSubject
	}
	id := strings.TrimSpace(claims.Subject)
	if id == "" {
		id = strings.TrimSpace(claims.UserID)
	}
	if id == "" {
		return "", ErrInvalidSubject
	}
	return domain.UserID(id), nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	if path == "" {
		return nil, errors.New("public key path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}
