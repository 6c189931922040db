package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/config"
	"storefront/internal/logger"

	"github.com/golang-jwt/jwt/v5"
)

type principalKey struct{}

// Principal аутентифицированный пользователь из токена провайдера идентификации
type Principal struct {
	UserID int64
	Email  string
	Role   string
}

// TokenValidator проверяет bearer токен
type TokenValidator interface {
	Validate(token string) (*Principal, error)
}

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTValidator проверяет HS256 токены, выпущенные внешним провайдером.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator создаёт валидатор. Без секрета любой токен отклоняется.
func NewJWTValidator(cfg *config.AuthConfig) *JWTValidator {
	if cfg == nil {
		return &JWTValidator{}
	}
	return &JWTValidator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Validate разбирает токен и возвращает пользователя из claims sub, email, role.
func (v *JWTValidator) Validate(token string) (*Principal, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("token validation is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, errors.New("invalid subject claim")
	}

	return &Principal{UserID: userID, Email: claims.Email, Role: claims.Role}, nil
}

// RequireAuth пропускает только запросы с валидным bearer токеном.
func RequireAuth(validator TokenValidator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				writeErrorResponse(w, http.StatusUnauthorized, "Missing or malformed authorization header")
				return
			}

			principal, err := validator.Validate(strings.TrimSpace(token))
			if err != nil {
				if log != nil {
					log.WithError(err).Debug("Token rejected")
				}
				writeErrorResponse(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole проверяет роль из токена. Ставится после RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeErrorResponse(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if principal.Role != role {
				writeErrorResponse(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal кладёт пользователя в контекст запроса
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext достаёт пользователя из контекста запроса
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
