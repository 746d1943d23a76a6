package rpc

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"prizechain/observability/logging"
)

// WriteScope is the JWT scope that unlocks write methods.
const WriteScope = "tx:write"

// AuthConfig controls who may call write methods. A request is accepted when
// it presents the static token or an HS256 JWT signed with JWTSecret that
// carries WriteScope.
type AuthConfig struct {
	Token          string
	JWTSecret      string
	Issuer         string
	ScopeClaim     string
	ClockSkew      time.Duration
	AllowAnonymous bool
}

type Authenticator struct {
	cfg    AuthConfig
	token  []byte
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		token:  []byte(strings.TrimSpace(cfg.Token)),
		secret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		logger: logger,
	}
}

// Authorize checks r for write access.
func (a *Authenticator) Authorize(r *http.Request) *RPCError {
	if a == nil || a.cfg.AllowAnonymous {
		return nil
	}
	if len(a.token) == 0 && len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "write methods are disabled: no credentials configured"}
	}
	bearer := extractBearer(r.Header.Get("Authorization"))
	if bearer == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if len(a.token) > 0 && subtle.ConstantTimeCompare([]byte(bearer), a.token) == 1 {
		return nil
	}
	if len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	claims, err := a.parseToken(bearer)
	if err != nil {
		a.logger.Warn("rpc auth: token rejected", slog.Any("error", err), logging.MaskField("token", bearer))
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	if !hasScope(extractScopes(claims, a.cfg.ScopeClaim), WriteScope) {
		return &RPCError{Code: codeForbidden, Message: "insufficient scope"}
	}
	return nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	switch v := claims[scopeClaim].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScope(scopes []string, want string) bool {
	for _, scope := range scopes {
		if scope == want {
			return true
		}
	}
	return false
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
