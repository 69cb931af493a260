package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/whispersend/backend/internal/auth"
	"github.com/whispersend/backend/internal/catalog"
	"github.com/whispersend/backend/internal/ledger"
	"github.com/whispersend/backend/internal/model"
	"github.com/whispersend/backend/internal/refund"
	"github.com/whispersend/backend/internal/scheduler"
	"github.com/whispersend/backend/internal/service"
)

const maxPageSize = 100

type MessageSender interface {
	Send(ctx context.Context, userID string, in service.SendInput) (service.Outcome, error)
}

type Deps struct {
	Sender   MessageSender
	Reader   *service.Reader
	Verifier *auth.Verifier
	// Catalog is nil when credits live in the hosted backend; package,
	// purchase and admin routes are not mounted then.
	Catalog catalog.Store
	Refunds refund.Queue
	Worker  *scheduler.Scheduler
}

type Handler struct {
	sender   MessageSender
	reader   *service.Reader
	verifier *auth.Verifier
	catalog  catalog.Store
	refunds  refund.Queue
	worker   *scheduler.Scheduler
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		sender:   d.Sender,
		reader:   d.Reader,
		verifier: d.Verifier,
		catalog:  d.Catalog,
		refunds:  d.Refunds,
		worker:   d.Worker,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Credits(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	c, err := h.reader.Credits(r.Context(), s.UserID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	var in service.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	out, err := h.sender.Send(r.Context(), s.UserID, in)
	if err != nil {
		var ve *service.ValidationError
		switch {
		case errors.As(err, &ve):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": ve.Message, "field": ve.Field})
		case errors.Is(err, service.ErrNoCredits), errors.Is(err, ledger.ErrInsufficientCredits):
			writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "no credits available", "credits": out.Credits})
		case errors.Is(err, service.ErrSendInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrUserBlocked):
			writeError(w, http.StatusForbidden, err.Error())
		case out.State == model.StateError:
			writeJSON(w, http.StatusBadGateway, out)
		default:
			slog.Error("send failed before reservation", "user_id", s.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	switch out.State {
	case model.StateSuccess:
		writeJSON(w, http.StatusOK, out)
	case model.StateSessionInvalid:
		if err := h.verifier.Revoke(r.Context(), s); err != nil {
			slog.Error("session revoke failed", "user_id", s.UserID, "err", err)
		}
		writeJSON(w, http.StatusUnauthorized, out)
	default:
		writeJSON(w, http.StatusBadGateway, out)
	}
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)
	q := r.URL.Query()

	limit := parseInt(q.Get("limit"), 50)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, err := h.reader.History(r.Context(), s.UserID, model.MessageFilter{
		Search: q.Get("search"),
		Limit:  limit,
		Offset: parseInt(q.Get("offset"), 0),
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if items == nil {
		items = []model.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	d, err := h.reader.Dashboard(r.Context(), s.UserID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	if err := h.verifier.Revoke(r.Context(), s); err != nil {
		slog.Error("session revoke failed", "user_id", s.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signed_out": true})
}

func (h *Handler) RefundStatus(w http.ResponseWriter, r *http.Request) {
	n, err := h.refunds.Len(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": n,
		"worker":  h.worker.Status(),
	})
}

// DrainRefunds runs one worker pass right away instead of waiting for the
// next tick.
func (h *Handler) DrainRefunds(w http.ResponseWriter, r *http.Request) {
	if err := h.worker.RunOnce(r.Context()); err != nil {
		slog.Error("manual refund drain failed", "err", err)
		writeError(w, http.StatusBadGateway, "refund pass failed")
		return
	}

	n, err := h.refunds.Len(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": n})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	var rpcErr *ledger.RPCError
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &rpcErr):
		writeError(w, http.StatusBadGateway, rpcErr.Message)
	default:
		slog.Error("ledger read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
