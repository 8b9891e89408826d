// Package auth issues and validates the HS256 tokens carrying the operator
// identity. The login flow itself lives in a separate identity service; this
// core only consumes its tokens.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jordanlanch/leadconsole/pkg/domain"
)

// Claims carries the actor identity inside the token.
type Claims struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT issues a token for an actor.
func GenerateJWT(actor domain.Actor, secret string, expirationHours int) (string, error) {
	claims := &Claims{
		ActorID: actor.ID,
		Name:    actor.Name,
		Role:    string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * time.Duration(expirationHours))),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateJWT validates a token and returns its claims.
func ValidateJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// Actor converts validated claims into the domain actor handed to engines.
func (c *Claims) Actor() (domain.Actor, error) {
	role := domain.Role(c.Role)
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("unknown role in token: %s", c.Role)
	}
	return domain.Actor{ID: c.ActorID, Name: c.Name, Role: role}, nil
}
