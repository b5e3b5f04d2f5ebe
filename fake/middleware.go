package fake

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by the auth middleware.
const (
	KeyUserID = "contaconmigo_user_id"
	KeyEmail  = "contaconmigo_email"
	KeyToken  = "contaconmigo_token"
)

// detail aborts with the backend's error body shape.
func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// record counts calls per route and serves injected failures.
func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " " + c.FullPath()

		s.mu.Lock()
		s.calls[key]++
		inj := s.failures[key]
		if inj != nil {
			inj.times--
			if inj.times <= 0 {
				delete(s.failures, key)
			}
		}
		s.mu.Unlock()

		if inj != nil {
			detail(c, inj.status, inj.detail)
			return
		}
		c.Next()
	}
}

// auth verifies the bearer token and stores its subject in the context.
// Responds with 401 if the token is missing, invalid, expired or revoked.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := s.verify(tokenStr)
		if err != nil {
			detail(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(KeyUserID, claims.Subject)
		c.Set(KeyEmail, claims.Email)
		c.Set(KeyToken, tokenStr)
		c.Next()
	}
}

func (s *Server) verify(tokenStr string) (*tokenClaims, error) {
	s.mu.RLock()
	revoked := s.revoked[tokenStr]
	s.mu.RUnlock()
	if revoked {
		return nil, errors.New("token has been revoked")
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.New("token has expired")
	case err != nil:
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GetUserID returns the authenticated user ID from the gin context.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(KeyUserID)
	s, _ := v.(string)
	return s
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
