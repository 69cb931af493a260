package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/whispersend/backend/internal/auth"
	"github.com/whispersend/backend/internal/ledger"
)

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		s, err := h.verifier.Verify(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) &&
				!errors.Is(err, auth.ErrSessionRevoked) &&
				!errors.Is(err, auth.ErrSessionIdle) {
				slog.Error("session check failed", "err", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "session expired", "redirect": "/login"})
			return
		}

		ctx := auth.WithSession(r.Context(), s)
		ctx = ledger.WithAccessToken(ctx, s.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := mustSession(r)

		p, err := h.catalog.Profile(r.Context(), s.UserID)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		if !p.IsAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// mustSession is only called behind requireSession.
func mustSession(r *http.Request) auth.Session {
	s, _ := auth.SessionFromContext(r.Context())
	return s
}
