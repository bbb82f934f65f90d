package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"lv-onboarding/internal/auth"
	"lv-onboarding/internal/httputil"
	"lv-onboarding/internal/onboarding"
)

type ctxKey string

const attemptIDKey ctxKey = "attempt_id"

// WithAttempt resolves the signup attempt from the X-Signup-Attempt header or
// the signup_attempt cookie. Missing or invalid tokens leave the request
// without an attempt; the workflow then starts over at step 1.
func WithAttempt(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(onboarding.AttemptHeader))
			if token == "" {
				if c, err := r.Cookie(onboarding.AttemptCookie); err == nil {
					token = c.Value
				}
			}
			if token != "" {
				if attemptID, err := svc.ParseAttempt(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), attemptIDKey, attemptID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func AttemptID(r *http.Request) string {
	id, _ := r.Context().Value(attemptIDKey).(string)
	return id
}

func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
