// Package middleware provides the gin middleware stack: owner identity
// extraction from JWTs, request logging and per-IP rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// OwnerIDKey is the gin context key holding the authenticated owner's UUID.
const OwnerIDKey = "owner_id"

// WithOwner verifies an optional Bearer JWT and stores the owner UUID in the
// context. Requests without a token pass through anonymous; requests with a
// bad token are rejected. Token issuance lives in a separate auth service;
// this middleware only verifies.
func WithOwner(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ownerID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		c.Set(OwnerIDKey, ownerID)
		c.Next()
	}
}

// OwnerFrom returns the authenticated owner UUID from the context, nil for
// anonymous requests.
func OwnerFrom(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(OwnerIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
