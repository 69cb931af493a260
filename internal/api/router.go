package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func Router(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/health", h.Health).Methods(http.MethodGet)

	// Admin rights live in the users table, so the admin surface needs the
	// catalog store.
	if h.catalog != nil {
		admin := r.PathPrefix("/v1/admin").Subrouter()
		admin.Use(h.requireSession, h.requireAdmin)
		admin.HandleFunc("/users", h.AdminUsers).Methods(http.MethodGet)
		admin.HandleFunc("/users/{id}/credits", h.AdminAddCredits).Methods(http.MethodPost)
		admin.HandleFunc("/users/{id}/block", h.AdminSetBlocked).Methods(http.MethodPost)
		admin.HandleFunc("/refunds", h.RefundStatus).Methods(http.MethodGet)
		admin.HandleFunc("/refunds/drain", h.DrainRefunds).Methods(http.MethodPost)
	}

	user := r.PathPrefix("/v1").Subrouter()
	user.Use(h.requireSession)
	user.HandleFunc("/credits", h.Credits).Methods(http.MethodGet)
	user.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	user.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	user.HandleFunc("/messages", h.ListMessages).Methods(http.MethodGet)
	user.HandleFunc("/session/logout", h.Logout).Methods(http.MethodPost)
	if h.catalog != nil {
		user.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
		user.HandleFunc("/profile", h.UpdateProfile).Methods(http.MethodPatch)
		user.HandleFunc("/packages", h.Packages).Methods(http.MethodGet)
		user.HandleFunc("/purchases", h.Purchase).Methods(http.MethodPost)
		user.HandleFunc("/purchases", h.Purchases).Methods(http.MethodGet)
	}

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("whispersend"))
	}).Methods(http.MethodGet)

	return r
}
