package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/mbeoliero/tradechat/pkg/jwt"
	"github.com/mbeoliero/tradechat/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// PartyIdKey is the context key for the caller's party id
	PartyIdKey = "party_id"
	// RoleKey is the context key for the caller's role
	RoleKey = "role"
)

// JWTAuth is the JWT authentication middleware
func JWTAuth(cfg *config.Config) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := ParseTokenWithFallback(tokenString, cfg)
		if err != nil {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		c.Set(PartyIdKey, claims.PartyId)
		c.Set(RoleKey, string(claims.Role))

		c.Next(ctx)
	}
}

// ParseTokenWithFallback tries a native token first, then falls back to a
// marketplace token if enabled.
func ParseTokenWithFallback(tokenString string, cfg *config.Config) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(tokenString, cfg.JWT.Secret)
	if err == nil {
		return claims, nil
	}

	if cfg.ExternalJWT.Enabled {
		return jwt.ParseExternalToken(
			tokenString,
			cfg.ExternalJWT.Secret,
			cfg.ExternalJWT.DefaultRole,
		)
	}

	return nil, err
}

// GetPartyId gets the caller's party id from context
func GetPartyId(c *app.RequestContext) string {
	if v, ok := c.Get(PartyIdKey); ok {
		return v.(string)
	}
	return ""
}
