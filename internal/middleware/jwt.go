package middleware

import (
	"fmt"
	"net/http"
	"time"

	"leavedesk/internal/common"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SupabaseClaims are the claims of a Supabase access token. The subject is
// the auth user id.
type SupabaseClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Validate rejects tokens whose subject is not a user id. jwt/v5 calls it
// after the registered claims checks.
func (c *SupabaseClaims) Validate() error {
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}
	return nil
}

type AuthConfig struct {
	JWTSecret string
	JWKSURL   string
}

// NewJWTMiddleware verifies bearer tokens against the JWKS endpoint when one
// is configured and the HS256 secret otherwise. The returned func releases
// the JWKS refresher.
func NewJWTMiddleware(cfg AuthConfig) (echo.MiddlewareFunc, func(), error) {
	config := echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(SupabaseClaims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*SupabaseClaims)
			if !ok {
				return
			}
			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return
			}
			c.SetRequest(c.Request().WithContext(common.WithUserID(c.Request().Context(), userID)))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			log.Debug().Err(err).Str("path", c.Path()).Msg("rejected bearer token")
			return common.SendFailure(c, http.StatusUnauthorized, "Invalid token")
		},
	}

	cleanup := func() {}
	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Warn().Err(err).Msg("failed to refresh JWKS")
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load JWKS from %s: %w", cfg.JWKSURL, err)
		}
		config.KeyFunc = jwks.Keyfunc
		cleanup = jwks.EndBackground
	case cfg.JWTSecret != "":
		config.SigningKey = []byte(cfg.JWTSecret)
		config.SigningMethod = echojwt.AlgorithmHS256
	default:
		return nil, nil, &common.ConfigurationError{Msg: "a JWT secret or JWKS URL is required"}
	}

	return echojwt.WithConfig(config), cleanup, nil
}

// RequireUser rejects requests that reached a handler without an
// authenticated user on the context.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := common.GetUserIDFromContext(c.Request().Context()); !ok {
				return common.SendUnauthorizedError(c)
			}
			return next(c)
		}
	}
}
