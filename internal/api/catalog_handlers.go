package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/whispersend/backend/internal/catalog"
	"github.com/whispersend/backend/internal/model"
)

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	p, err := h.catalog.Profile(r.Context(), s.UserID)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	var req struct {
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.catalog.UpdateName(r.Context(), s.UserID, req.FullName); err != nil {
		writeCatalogError(w, err)
		return
	}
	h.Profile(w, r)
}

func (h *Handler) Packages(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ActivePackages(r.Context())
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if items == nil {
		items = []model.Package{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type purchaseRequest struct {
	PackageID     string              `json:"package_id"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PackageID == "" {
		writeError(w, http.StatusBadRequest, "package_id and payment_method are required")
		return
	}

	p, err := h.catalog.Purchase(r.Context(), s.UserID, req.PackageID, req.PaymentMethod)
	if err != nil {
		writeCatalogError(w, err)
		return
	}

	slog.Info("package purchased", "user_id", s.UserID, "package_id", p.PackageID, "purchase_id", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	items, err := h.catalog.Purchases(r.Context(), s.UserID)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if items == nil {
		items = []model.Purchase{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.UserStats(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if items == nil {
		items = []model.UserStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AdminAddCredits(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req struct {
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.catalog.AddCredits(r.Context(), userID, req.Amount); err != nil {
		writeCatalogError(w, err)
		return
	}

	slog.Info("credits granted", "admin_id", mustSession(r).UserID, "user_id", userID, "amount", req.Amount)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "added": req.Amount})
}

func (h *Handler) AdminSetBlocked(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.catalog.SetBlocked(r.Context(), userID, req.Blocked); err != nil {
		writeCatalogError(w, err)
		return
	}

	slog.Info("user block changed", "admin_id", mustSession(r).UserID, "user_id", userID, "blocked", req.Blocked)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "blocked": req.Blocked})
}

func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUserNotFound), errors.Is(err, catalog.ErrPackageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInvalidAmount),
		errors.Is(err, catalog.ErrInvalidPaymentMethod),
		errors.Is(err, catalog.ErrInvalidName):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("catalog request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
