package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrMissingToken  = errors.New("missing identity token")
	ErrInvalidToken  = errors.New("invalid identity token")
	ErrExpiredToken  = errors.New("identity token has expired")
	ErrMissingEmail  = errors.New("user email is empty in identity token")
	ErrInvalidIssuer = errors.New("identity token issuer mismatch")
)

// Identity is what the connectors need from the hub token.
type Identity struct {
	Email   string
	Subject string
}

// TokenParser reads the caller identity from hub bearer tokens.
type TokenParser struct {
	publicKey   *rsa.PublicKey
	issuer      string
	emailClaims []string
	parser      *jwt.Parser
}

// NewTokenParser loads the verification key if one is configured.
func NewTokenParser(cfg config.AuthConfig) (*TokenParser, error) {
	p := &TokenParser{
		issuer:      cfg.Issuer,
		emailClaims: cfg.EmailClaims,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})),
	}
	if len(p.emailClaims) == 0 {
		p.emailClaims = []string{"eml", "email"}
	}
	if cfg.PublicKeyFile == "" {
		return p, nil
	}

	pem, err := os.ReadFile(cfg.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read hub public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse hub public key: %w", err)
	}
	p.publicKey = key
	return p, nil
}

// NewTokenParserWithKey is used by tests and callers that already hold the key.
func NewTokenParserWithKey(key *rsa.PublicKey, issuer string) *TokenParser {
	return &TokenParser{
		publicKey:   key,
		issuer:      issuer,
		emailClaims: []string{"eml", "email"},
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})),
	}
}

// Verifies reports whether token signatures are checked.
func (p *TokenParser) Verifies() bool {
	return p.publicKey != nil
}

// Parse extracts the caller identity from an Authorization header value or a
// raw token.
func (p *TokenParser) Parse(raw string) (*Identity, error) {
	token := strings.TrimSpace(raw)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	if p.publicKey == nil {
		if _, _, err := p.parser.ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		_, err := p.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return p.publicKey, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrExpiredToken
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if p.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != p.issuer {
			return nil, ErrInvalidIssuer
		}
	}

	id := &Identity{}
	id.Subject, _ = claims.GetSubject()
	for _, name := range p.emailClaims {
		if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
			id.Email = strings.TrimSpace(v)
			break
		}
	}
	if id.Email == "" {
		return id, ErrMissingEmail
	}
	return id, nil
}
