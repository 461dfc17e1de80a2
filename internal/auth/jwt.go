package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for c with a fresh jti. The returned Claims carry
// that jti so callers can persist the session.
func (i *Issuer) Sign(c Claims) (string, Claims, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	c.JWTID = uuid.NewString()
	mc := jwt.MapClaims{
		"sub":   c.Subject,
		"roles": c.Roles,
		"jti":   c.JWTID,
		"exp":   exp.Unix(),
		"iat":   now.Unix(),
	}
	if c.TenantID != "" {
		mc["tenant_id"] = c.TenantID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	s, err := token.SignedString(i.key)
	if err != nil {
		return "", Claims{}, time.Time{}, err
	}
	return s, c, exp, nil
}

func (i *Issuer) Verify(tokenStr string) (Claims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(i.now))
	if err != nil || !tok.Valid {
		return Claims{}, errors.New("invalid token")
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}
	sub, _ := mapc["sub"].(string)
	if sub == "" {
		return Claims{}, errors.New("missing subject")
	}
	tenantID, _ := mapc["tenant_id"].(string)
	jti, _ := mapc["jti"].(string)
	var roles []string
	if arr, ok := mapc["roles"].([]interface{}); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return Claims{Subject: sub, TenantID: tenantID, Roles: roles, JWTID: jti}, nil
}
