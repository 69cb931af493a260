package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/whispersend/backend/internal/cache"
	"github.com/whispersend/backend/internal/client"
	"github.com/whispersend/backend/internal/ledger"
	"github.com/whispersend/backend/internal/model"
	"github.com/whispersend/backend/internal/phone"
	"github.com/whispersend/backend/internal/refund"
)

var (
	ErrNoCredits    = errors.New("no credits available")
	ErrSendInFlight = errors.New("a message is already being sent")
)

const (
	refusedMessage = "the server refused the delivery"
	loginPath      = "/login"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type DeliveryClient interface {
	Send(ctx context.Context, r client.Request) (client.Delivery, error)
}

type SendInput struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Alias   string `json:"alias"`
}

// SignOut tells the caller to end the session and where to go afterwards.
type SignOut struct {
	AfterMS  int64  `json:"sign_out_after_ms"`
	Redirect string `json:"redirect"`
}

type Outcome struct {
	State     model.SendState `json:"state"`
	MessageID string          `json:"message_id,omitempty"`
	Credits   *model.Credits  `json:"credits,omitempty"`
	Error     string          `json:"error,omitempty"`
	Warnings  []model.Warning `json:"warnings,omitempty"`
	*SignOut
}

type SenderConfig struct {
	TextMax      int
	AliasMax     int
	InflightTTL  time.Duration
	SignOutDelay time.Duration

	RefundAttempts uint64
	RefundBase     time.Duration
}

type Sender struct {
	ledger   ledger.Ledger
	delivery DeliveryClient
	locks    cache.Locker
	refunds  refund.Queue
	cfg      SenderConfig
	now      func() time.Time
}

func NewSender(l ledger.Ledger, d DeliveryClient, locks cache.Locker, refunds refund.Queue, cfg SenderConfig) (*Sender, error) {
	if l == nil || d == nil || locks == nil || refunds == nil {
		return nil, errors.New("ledger, delivery client, locker and refund queue must not be nil")
	}
	if cfg.TextMax <= 0 || cfg.AliasMax <= 0 {
		return nil, errors.New("text and alias limits must be > 0")
	}
	if cfg.InflightTTL <= 0 {
		return nil, errors.New("inflight ttl must be > 0")
	}
	if cfg.RefundBase <= 0 {
		cfg.RefundBase = 200 * time.Millisecond
	}
	return &Sender{
		ledger:   l,
		delivery: d,
		locks:    locks,
		refunds:  refunds,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Send runs one submission end to end. A returned error means nothing was
// reserved; once a credit is reserved the result is always reported through
// the Outcome.
func (s *Sender) Send(ctx context.Context, userID string, in SendInput) (Outcome, error) {
	req, err := s.validate(in)
	if err != nil {
		return Outcome{State: model.StateIdle}, err
	}

	credits, err := s.ledger.Credits(ctx, userID)
	if err != nil {
		return Outcome{State: model.StateIdle}, fmt.Errorf("load credits: %w", err)
	}
	if credits.Available <= 0 {
		return Outcome{State: model.StateIdle, Credits: &credits}, ErrNoCredits
	}

	token, ok, err := s.locks.Acquire(ctx, inflightKey(userID), s.cfg.InflightTTL)
	if err != nil {
		return Outcome{State: model.StateIdle}, fmt.Errorf("acquire in-flight token: %w", err)
	}
	if !ok {
		return Outcome{State: model.StateIdle}, ErrSendInFlight
	}
	defer func() {
		// Release must happen even when the caller went away.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locks.Release(rctx, inflightKey(userID), token); err != nil && !errors.Is(err, cache.ErrNotHeld) {
			slog.Warn("in-flight token release failed", "user_id", userID, "err", err)
		}
	}()

	res, err := s.ledger.Reserve(ctx, userID, req)
	if err != nil {
		slog.Warn("reservation failed", "user_id", userID, "err", err)
		return Outcome{State: model.StateError, Error: err.Error()}, fmt.Errorf("reserve: %w", err)
	}

	slog.Info("credit reserved", "user_id", userID, "message_id", res.MessageID, "available", res.Available)

	out := Outcome{State: model.StateSending, MessageID: res.MessageID}
	needsRefund := false

	d, err := s.delivery.Send(ctx, client.Request{
		Phone:     phone.Digits(req.Phone),
		Message:   req.Text,
		UserID:    userID,
		Alias:     req.Alias,
		MessageID: res.MessageID,
	})

	// Past this point the client may be gone; the reservation must still be settled.
	settle := context.WithoutCancel(ctx)

	switch {
	case err != nil:
		slog.Error("delivery failed", "user_id", userID, "message_id", res.MessageID, "err", err)
		out.State = model.StateError
		out.Error = err.Error()
		needsRefund = true

	case d.Verdict == client.Delivered:
		out.State = model.StateSuccess
		if err := s.ledger.Confirm(settle, res.MessageID); err != nil {
			// The credit stays consumed; the message may stay pending.
			slog.Error("confirm after delivery failed",
				"user_id", userID,
				"message_id", res.MessageID,
				"err", err,
			)
			out.Warnings = append(out.Warnings, model.WarnConfirmPending)
		}

	case d.Verdict == client.UserNotFound:
		slog.Warn("webhook reported unknown user", "user_id", userID, "message_id", res.MessageID, "response", d.Raw)
		out.State = model.StateSessionInvalid
		out.Error = d.Raw
		out.SignOut = &SignOut{
			AfterMS:  s.cfg.SignOutDelay.Milliseconds(),
			Redirect: loginPath,
		}
		needsRefund = true

	default:
		slog.Warn("delivery rejected", "user_id", userID, "message_id", res.MessageID, "response", d.Raw)
		out.State = model.StateError
		out.Error = refusedMessage
		needsRefund = true
	}

	if needsRefund {
		if w, ok := s.refund(settle, userID, res.MessageID); !ok {
			out.Warnings = append(out.Warnings, w)
		}
	}

	out.Credits = s.reconcile(settle, userID)
	return out, nil
}

// refund tries the ledger inline first and falls back to the durable queue.
func (s *Sender) refund(ctx context.Context, userID, messageID string) (model.Warning, bool) {
	err := refund.Inline(ctx, s.ledger, messageID, s.cfg.RefundAttempts, s.cfg.RefundBase, ledger.IsPermanent)
	if err == nil {
		slog.Info("credit refunded", "user_id", userID, "message_id", messageID)
		return "", true
	}
	if ledger.IsPermanent(err) {
		// Nothing left to give back: the message is no longer pending.
		slog.Warn("refund not applicable", "user_id", userID, "message_id", messageID, "err", err)
		return "", true
	}

	now := s.now()
	job := refund.Job{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		UserID:     userID,
		Attempts:   int(s.cfg.RefundAttempts) + 1,
		LastError:  err.Error(),
		EnqueuedAt: now,
		NextAt:     now,
	}
	if qerr := s.refunds.Enqueue(ctx, job); qerr != nil {
		slog.Error("refund lost: inline failed and enqueue failed",
			"user_id", userID,
			"message_id", messageID,
			"refund_err", err,
			"queue_err", qerr,
		)
		return model.WarnRefundQueued, false
	}

	slog.Warn("refund queued", "user_id", userID, "message_id", messageID, "job_id", job.ID, "err", err)
	return model.WarnRefundQueued, false
}

func (s *Sender) reconcile(ctx context.Context, userID string) *model.Credits {
	c, err := s.ledger.Credits(ctx, userID)
	if err != nil {
		slog.Warn("credit reconcile failed", "user_id", userID, "err", err)
		return nil
	}
	return &c
}

func (s *Sender) validate(in SendInput) (ledger.ReserveRequest, error) {
	formatted, err := phone.Validate(in.Phone)
	if err != nil {
		return ledger.ReserveRequest{}, &ValidationError{Field: "phone", Message: err.Error()}
	}

	text := strings.TrimSpace(in.Message)
	if text == "" {
		return ledger.ReserveRequest{}, &ValidationError{Field: "message", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(text) > s.cfg.TextMax {
		return ledger.ReserveRequest{}, &ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("exceeds %d chars", s.cfg.TextMax),
		}
	}

	alias := strings.TrimSpace(in.Alias)
	if utf8.RuneCountInString(alias) > s.cfg.AliasMax {
		return ledger.ReserveRequest{}, &ValidationError{
			Field:   "alias",
			Message: fmt.Sprintf("exceeds %d chars", s.cfg.AliasMax),
		}
	}
	if alias == "" {
		alias = model.DefaultAlias
	}

	return ledger.ReserveRequest{Phone: formatted, Text: text, Alias: alias}, nil
}

func inflightKey(userID string) string {
	return "send:" + userID
}
