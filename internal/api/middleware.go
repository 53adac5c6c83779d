package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var (
	errUnauthorized = errors.New("missing or invalid bearer token")
	errForbidden    = errors.New("access denied")
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTMiddleware verifies an HS256 bearer token and stores the user id and
// role claims on the context. Tokens are issued elsewhere.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			const prefix = "Bearer "
			if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
				return errUnauthorized
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(authHeader[len(prefix):], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return errUnauthorized
			}

			userID, _ := claims["user_id"].(string)
			if userID == "" {
				userID, _ = claims["sub"].(string)
			}
			if userID == "" {
				return errUnauthorized
			}
			role, _ := claims["role"].(string)

			c.Set(ctxUserID, userID)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}

// RequireRoles ensures the requester's role is one of the allowed roles.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxRole).(string)
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return errForbidden
		}
	}
}

// RequestLogger writes one line per request.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
			}
			if userID, ok := c.Get(ctxUserID).(string); ok {
				fields = append(fields, zap.String("user_id", userID))
			}
			if res.Status >= http.StatusInternalServerError {
				log.Error("request failed", append(fields, zap.Error(err))...)
			} else {
				log.Info("request", fields...)
			}
			return nil
		}
	}
}

func currentUser(c echo.Context) string {
	userID, _ := c.Get(ctxUserID).(string)
	return userID
}
