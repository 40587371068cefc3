package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the chat service needs from an access token.
type Claims struct {
	Subject  string
	Role     string
	TenantID string
}

type JWTValidator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

func NewJWTValidator(pubKeyPath, alg, secret string) (*JWTValidator, error) {
	jv := &JWTValidator{alg: alg}
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		jv.pubKey = key
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		jv.secret = []byte(secret)
	default:
		return nil, errors.New("unsupported alg")
	}
	return jv, nil
}

func (j *JWTValidator) key(*jwt.Token) (interface{}, error) {
	if j.alg == "RS256" {
		return j.pubKey, nil
	}
	return j.secret, nil
}

// Validate checks signature and expiry. The user id is read from sub, then
// user_id, then id.
func (j *JWTValidator) Validate(token string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{j.alg}))
	tok, err := parser.Parse(token, j.key)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	c := &Claims{
		Subject:  firstString(claims, "sub", "user_id", "id"),
		Role:     firstString(claims, "role"),
		TenantID: firstString(claims, "tenant_id", "tenantId"),
	}
	if c.Subject == "" {
		return nil, errors.New("sub missing")
	}
	return c, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
