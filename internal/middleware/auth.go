package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"genfity-floor-services/internal/auth"
)

type contextKey string

const authContextKey contextKey = "authContext"

type AuthContext struct {
	UserID    int64
	SessionID int64
	Role      auth.UserRole
	Name      string
}

func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	value := ctx.Value(authContextKey)
	if value == nil {
		return nil, false
	}
	ac, ok := value.(*AuthContext)
	return ac, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeAuthErrorDebug(w, status, message, "")
}

func writeAuthErrorDebug(w http.ResponseWriter, status int, message string, debug string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	code := "UNAUTHORIZED"
	if status == http.StatusForbidden {
		code = "FORBIDDEN"
	}
	payload := map[string]any{
		"success": false,
		"error":   code,
		"message": message,
	}

	if os.Getenv("APP_ENV") == "development" && strings.TrimSpace(debug) != "" {
		payload["debug"] = debug
	}

	_ = json.NewEncoder(w).Encode(payload)
}

var errInvalidToken = errors.New("invalid token")

// Authenticate verifies a staff token and turns its claims into an AuthContext.
func Authenticate(token string, jwtSecret string) (*AuthContext, error) {
	claims, err := auth.VerifyAccessToken(token, jwtSecret)
	if err != nil {
		return nil, err
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}

	userID, err := parseInt64(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: userId", errInvalidToken)
	}
	var sessionID int64
	if strings.TrimSpace(claims.SessionID) != "" {
		if sessionID, err = parseInt64(claims.SessionID); err != nil {
			return nil, fmt.Errorf("%w: sessionId", errInvalidToken)
		}
	}

	authCtx := &AuthContext{UserID: userID, SessionID: sessionID, Role: claims.Role}
	if claims.Name != nil {
		authCtx.Name = strings.TrimSpace(*claims.Name)
	}
	return authCtx, nil
}

// StaffAuth requires a bearer token whose role may call the requested route.
func StaffAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ParseBearerToken(r.Header.Get("Authorization"))
			authCtx, err := Authenticate(token, jwtSecret)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Authorization token required", err.Error())
				return
			}

			recordActor(r.Context(), authCtx)

			if !auth.Allowed(authCtx.Role, r.URL.Path, r.Method) {
				writeAuthError(w, http.StatusForbidden, "You do not have permission to access this resource")
				return
			}

			ctx := WithAuthContext(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
