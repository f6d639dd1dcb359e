package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware attaches a request-scoped logger to the context and logs
// method, path, status and duration when the request completes.
func LoggingMiddleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With().Str("request_id", GetRequestID(r.Context())).Logger()

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r.WithContext(logger.WithContext(r.Context())))

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string
	// TrustHeaders accepts X-User-ID, X-Role and X-Clinic-ID when no secret is
	// configured. Only for local development.
	TrustHeaders bool
}

type callerClaims struct {
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id,omitempty"`
	jwt.RegisteredClaims
}

var errBadCredentials = errors.New("invalid credentials")

// AuthMiddleware resolves the caller once per request and stores it with
// auth.WithContext. Requests without a usable identity get 401.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				caller auth.Context
				err    error
			)
			switch {
			case cfg.JWTSecret != "":
				caller, err = callerFromToken(r, cfg.JWTSecret)
			case cfg.TrustHeaders:
				caller, err = callerFromHeaders(r)
			default:
				err = auth.ErrUnauthenticated
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}

			logger := zerolog.Ctx(r.Context()).With().
				Str("caller", caller.UserID).
				Str("role", string(caller.Role)).
				Logger()
			ctx := logger.WithContext(auth.WithContext(r.Context(), caller))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFromToken(r *http.Request, secret string) (auth.Context, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return auth.Context{}, auth.ErrUnauthenticated
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claims := callerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return auth.Context{}, errBadCredentials
	}
	return buildCaller(claims.Subject, claims.Role, claims.ClinicID)
}

func callerFromHeaders(r *http.Request) (auth.Context, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return auth.Context{}, auth.ErrUnauthenticated
	}
	return buildCaller(userID, r.Header.Get("X-Role"), r.Header.Get("X-Clinic-ID"))
}

func buildCaller(subject, role, clinic string) (auth.Context, error) {
	caller := auth.Context{UserID: subject, Role: auth.Role(role)}
	if subject == "" || !caller.Role.Valid() {
		return auth.Context{}, errBadCredentials
	}
	if clinic != "" {
		id, err := uuid.Parse(clinic)
		if err != nil {
			return auth.Context{}, errBadCredentials
		}
		caller.ClinicID = id
	}
	if caller.ClinicID == uuid.Nil && !caller.IsGlobalAdmin() {
		return auth.Context{}, errBadCredentials
	}
	return caller, nil
}

// callerFrom returns the caller resolved by AuthMiddleware.
func callerFrom(r *http.Request) (auth.Context, error) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Context{}, auth.ErrUnauthenticated
	}
	return caller, nil
}
