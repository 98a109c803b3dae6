package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/domain/model"
	"agroconecta-billing/internal/infra/logging"
)

const (
	RoleSubscriber = "subscriber"
	RoleAdmin      = "admin"
)

// Claims is the bearer token payload issued by the marketplace backend.
// Subject is the subscriber id; Kind tells which side of the marketplace.
type Claims struct {
	Kind string `json:"kind"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Mint signs a token for ref. The marketplace backend owns login; this exists
// for tooling and tests.
func (a *Authenticator) Mint(ref model.SubscriberRef, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind: string(ref.Kind),
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   ref.ID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ParseFromRequest(r *http.Request) (*Claims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *Authenticator) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type ctxKey int

const ctxSubscriber ctxKey = iota

// RequireSubscriber rejects requests without a valid subscriber token and
// stores the caller's SubscriberRef in the context.
func (a *Authenticator) RequireSubscriber(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), "")
			return
		}
		kind, err := model.ParseSubscriberKind(claims.Kind)
		if err != nil || claims.Subject == "" {
			writeStatus(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), "token carries no subscriber")
			return
		}
		ref := model.SubscriberRef{Kind: kind, ID: claims.Subject}
		ctx := context.WithValue(r.Context(), ctxSubscriber, ref)
		ctx = logging.WithSubscriber(ctx, string(ref.Kind), ref.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin only lets tokens with role=admin through.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), "")
			return
		}
		if claims.Role != RoleAdmin {
			writeStatus(w, http.StatusForbidden, "admin role required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func subscriberFrom(ctx context.Context) (model.SubscriberRef, bool) {
	ref, ok := ctx.Value(ctxSubscriber).(model.SubscriberRef)
	return ref, ok
}
