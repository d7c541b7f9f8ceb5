package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.UserID, error)
}

// Auth требует Bearer-токен и кладёт user id в контекст.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if len(auth) <= 7 || !strings.EqualFold(auth[:7], "Bearer ") {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			uid, err := authn.Authenticate(r.Context(), strings.TrimSpace(auth[7:]))
			if err != nil {
				L(r.Context()).Info("http auth rejected", "err", err)
				writeUnauthorized(w, "authentication_failed")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromCtx(ctx context.Context) domain.UserID {
	if v, ok := ctx.Value(ctxKeyUserID).(domain.UserID); ok {
		return v
	}
	return ""
}

// WithUserID - для тестов обработчиков без middleware.
func WithUserID(ctx context.Context, uid domain.UserID) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, uid)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
