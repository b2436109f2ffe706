package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/domain"
)

// Claims are the bearer token claims an actor is built from. The subject is
// the actor id.
type Claims struct {
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
	StaffRole string `json:"staff_role,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	actorKey ctxKey = iota
	slotKey
)

// actorSlot lets the request logger see the actor the authenticator resolved
// further down the chain.
type actorSlot struct {
	actor domain.Actor
	set   bool
}

func withActorSlot(ctx context.Context, s *actorSlot) context.Context {
	return context.WithValue(ctx, slotKey, s)
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	if s, ok := ctx.Value(slotKey).(*actorSlot); ok {
		s.actor, s.set = actor, true
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor stored by the authenticator.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey).(domain.Actor)
	return a, ok
}

// NewAuthenticator returns a middleware that requires an HS256 bearer token
// signed with secret and stores the actor it describes in the request
// context. Missing or invalid tokens get 401.
func NewAuthenticator(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authorization header missing or invalid")
				return
			}

			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token claims")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// Actor converts validated claims into an actor.
func (c Claims) Actor() (domain.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("sub: %w", err)
	}
	company, err := uuid.Parse(c.CompanyID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("company_id: %w", err)
	}
	role := domain.Role(c.Role)
	if role != domain.RoleCompanyAdmin && role != domain.RoleStaff {
		return domain.Actor{}, errors.New("role: unknown")
	}
	return domain.Actor{ID: id, CompanyID: company, Role: role, StaffRole: domain.StaffRole(c.StaffRole)}, nil
}

// IssueToken signs an HS256 token for actor that expires ttl after now.
func IssueToken(secret []byte, actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		CompanyID: actor.CompanyID.String(),
		Role:      string(actor.Role),
		StaffRole: string(actor.StaffRole),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// writeError writes the same error envelope the handlers use.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message, "overridable": false},
	})
}
