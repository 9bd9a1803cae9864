// Package auth verifies bearer tokens issued by the identity service and
// decides whether an actor may touch an order, transaction or payout.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
)

const actorKey = "auth.actor"

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Email  string
	Staff  bool
	Seller bool
	// StoreID is the seller's store, filled in lazily by seller operations.
	StoreID string
}

// Claims are the token claims this service reads.
type Claims struct {
	Email   string `json:"email,omitempty"`
	IsStaff bool   `json:"is_staff,omitempty"`
	// IsSeller marks users that own a store.
	IsSeller bool `json:"is_seller,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(token string) (Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return Actor{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return Actor{}, errors.New("invalid token claims")
	}
	return Actor{
		UserID: claims.Subject,
		Email:  claims.Email,
		Staff:  claims.IsStaff,
		Seller: claims.IsSeller,
	}, nil
}

// Issue signs a token for a; used by tests and local tooling.
func (v *Verifier) Issue(a Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:    a.Email,
		IsStaff:  a.Staff,
		IsSeller: a.Seller,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authorization header is missing"})
			return
		}
		actor, err := v.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid or expired token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireSeller must run after Middleware.
func RequireSeller() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ActorFrom(c)
		if !ok || !(a.Seller || a.Staff) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(apperr.KindForbidden), "message": "seller account required"})
			return
		}
		c.Next()
	}
}

func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ActorFrom(c)
		if !ok || !a.Staff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(apperr.KindForbidden), "message": "staff only"})
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}

// WithActor stores a on the context. Handlers tests use it to skip tokens.
func WithActor(c *gin.Context, a Actor) {
	c.Set(actorKey, a)
}

// Resource describes who may act on something.
type Resource struct {
	OwnerID  string
	StoreIDs []string
}

// Authorize allows staff, the owner, and sellers whose store is listed.
func Authorize(a Actor, r Resource) error {
	if a.Staff {
		return nil
	}
	if r.OwnerID != "" && r.OwnerID == a.UserID {
		return nil
	}
	if a.StoreID != "" {
		for _, s := range r.StoreIDs {
			if s == a.StoreID {
				return nil
			}
		}
	}
	return apperr.Forbidden("permission denied")
}
