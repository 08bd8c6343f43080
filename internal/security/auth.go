package security

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	registryratelimit "github.com/chirino/weave-service/internal/registry/ratelimit"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID.
	ContextKeyUserID = "userID"

	// DebugUserHeader names the caller directly. Only honoured in testing mode.
	DebugUserHeader = "X-Debug-User"
)

// Identity holds the resolved caller identity.
type Identity struct {
	UserID string
}

// TokenResolver resolves bearer tokens to caller identities. It is created once at startup.
type TokenResolver struct {
	verifier    *oidc.IDTokenVerifier
	testingMode bool
}

// NewTokenResolver creates a TokenResolver from the application config. It performs
// one-time OIDC provider discovery if OIDCIssuer is configured.
func NewTokenResolver(cfg *config.Config) *TokenResolver {
	var verifier *oidc.IDTokenVerifier
	oidcIssuer := cfg.OIDCIssuer

	if oidcIssuer != "" {
		ctx := context.Background()
		expectedIssuer := oidcIssuer
		discoveryURL := cfg.OIDCDiscoveryURL
		if discoveryURL != "" && discoveryURL != oidcIssuer {
			// NewProvider fetches from its issuer arg, so discovery happens at the
			// internal URL while tokens carry the external issuer.
			ctx = oidc.InsecureIssuerURLContext(ctx, oidcIssuer)
			oidcIssuer = discoveryURL
		}
		provider, err := oidc.NewProvider(ctx, oidcIssuer)
		if err != nil {
			log.Error("Failed to initialize OIDC provider; bearer tokens are treated as user ids", "issuer", oidcIssuer, "err", err)
		} else {
			var providerClaims struct {
				JWKSURI string `json:"jwks_uri"`
			}
			if expectedIssuer != oidcIssuer {
				if err := provider.Claims(&providerClaims); err == nil && providerClaims.JWKSURI != "" {
					keySet := oidc.NewRemoteKeySet(ctx, providerClaims.JWKSURI)
					verifier = oidc.NewVerifier(expectedIssuer, keySet, &oidc.Config{SkipClientIDCheck: true})
				}
			}
			if verifier == nil {
				verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
			}
			log.Info("OIDC auth enabled", "issuer", expectedIssuer)
		}
	}

	return &TokenResolver{
		verifier:    verifier,
		testingMode: cfg.Mode == config.ModeTesting,
	}
}

var (
	errInvalidJWT      = errors.New("invalid JWT")
	errMissingIdentity = errors.New("JWT missing identity claims")
	errMissingToken    = errors.New("missing bearer token")
)

// Resolve turns a bearer token into an Identity. JWTs are verified against the
// OIDC issuer and identified by their subject; any other token is taken as the
// user id. In testing mode a non-empty debugUser wins over the token.
func (r *TokenResolver) Resolve(ctx context.Context, bearerToken, debugUser string) (*Identity, error) {
	if r.testingMode {
		if u := strings.TrimSpace(debugUser); u != "" {
			return &Identity{UserID: u}, nil
		}
	}
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return nil, errMissingToken
	}

	if r.verifier == nil || strings.Count(bearerToken, ".") < 2 {
		return &Identity{UserID: bearerToken}, nil
	}

	idToken, err := r.verifier.Verify(ctx, bearerToken)
	if err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Join(errInvalidJWT, err)
	}
	userID := claims.Sub
	if userID == "" {
		userID = claims.PreferredUsername
	}
	if userID == "" {
		return nil, errMissingIdentity
	}
	return &Identity{UserID: userID}, nil
}

// GetUserID returns the authenticated user ID from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// AuthMiddleware rejects unauthenticated requests and stores the caller's user id.
func AuthMiddleware(resolver *TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, resolver) {
			return
		}
		c.Next()
	}
}

// AuthRateLimitMiddleware authenticates the caller and then charges the
// request against the caller's rate-limit budget. A nil limiter only authenticates.
func AuthRateLimitMiddleware(resolver *TokenResolver, limiter registryratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, resolver) || !enforceRateLimit(c, limiter) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, resolver *TokenResolver) bool {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if auth != "" && token == auth {
		log.Info("Auth rejected: expected Bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "invalid Authorization header; expected Bearer token"})
		return false
	}

	id, err := resolver.Resolve(c.Request.Context(), token, c.GetHeader(DebugUserHeader))
	if err != nil {
		log.Info("Auth rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": err.Error()})
		return false
	}
	c.Set(ContextKeyUserID, id.UserID)
	return true
}
