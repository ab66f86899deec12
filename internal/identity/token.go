package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrMissingSecret = errors.New("missing_jwt_secret")
)

// Claims is the payload of an access token.
type Claims struct {
	jwt.RegisteredClaims

	OrganizationID string    `json:"org,omitempty"`
	Roles          []string  `json:"roles,omitempty"`
	Kind           ActorKind `json:"kind,omitempty"`
}

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Tokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for actor valid for ttl.
func (t *Tokens) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrganizationID: actor.OrganizationID,
		Roles:          actor.Roles,
		Kind:           actor.Kind,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a raw token and returns the actor it names.
func (t *Tokens) Parse(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Actor{}, apperr.Mark(ErrMissingToken, apperr.ErrNotAuthorized)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, apperr.Wrap(err, apperr.ErrNotAuthorized, "Invalid token")
	}

	kind := claims.Kind
	if kind == "" {
		kind = ActorUser
	}
	if kind == ActorUser && strings.TrimSpace(claims.Subject) == "" {
		return Actor{}, apperr.Mark(ErrInvalidToken, apperr.ErrNotAuthorized)
	}
	return Actor{
		Kind:           kind,
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Roles:          claims.Roles,
	}, nil
}

// FromAuthorizationHeader extracts the token of a "Bearer <token>" header.
func FromAuthorizationHeader(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
