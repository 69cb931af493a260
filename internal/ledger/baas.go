package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/whispersend/backend/internal/model"
)

// BaaSLedger talks to the hosted backend's REST/RPC gateway. Mutations go
// through the stored procedures that own the credit bookkeeping.
type BaaSLedger struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBaaSLedger(baseURL, apiKey string, timeout time.Duration) *BaaSLedger {
	return &BaaSLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type reserveParams struct {
	Phone string `json:"p_recipient_phone"`
	Text  string `json:"p_message_text"`
	Alias string `json:"p_sender_alias"`
}

type reserveResult struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id"`
	NewCredits *int   `json:"new_credits"`
	Error      string `json:"error"`
}

type messageParams struct {
	MessageID string `json:"p_message_id"`
}

type apiError struct {
	Message string `json:"message"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
}

func (l *BaaSLedger) Reserve(ctx context.Context, userID string, req ReserveRequest) (model.Reservation, error) {
	var out reserveResult
	err := l.rpc(ctx, "send_new_message", reserveParams{
		Phone: req.Phone,
		Text:  req.Text,
		Alias: req.Alias,
	}, &out)
	if err != nil {
		return model.Reservation{}, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "reservation rejected"
		}
		return model.Reservation{}, &RPCError{Op: "send_new_message", Message: msg}
	}
	if out.MessageID == "" {
		return model.Reservation{}, fmt.Errorf("send_new_message: missing message_id")
	}

	res := model.Reservation{MessageID: out.MessageID, Available: -1}
	if out.NewCredits != nil {
		res.Available = *out.NewCredits
	}
	return res, nil
}

func (l *BaaSLedger) Confirm(ctx context.Context, messageID string) error {
	return l.rpc(ctx, "confirm_message_sent", messageParams{MessageID: messageID}, nil)
}

func (l *BaaSLedger) Refund(ctx context.Context, messageID string) error {
	return l.rpc(ctx, "refund_message_credit", messageParams{MessageID: messageID}, nil)
}

func (l *BaaSLedger) Credits(ctx context.Context, userID string) (model.Credits, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)

	var rows []model.Credits
	if err := l.get(ctx, "user_credits", q, &rows); err != nil {
		return model.Credits{}, err
	}
	if len(rows) == 0 {
		return model.Credits{}, ErrUserNotFound
	}
	c := rows[0]
	c.UserID = userID
	return c, nil
}

func (l *BaaSLedger) ListMessages(ctx context.Context, userID string, f model.MessageFilter) ([]model.Message, error) {
	f = normalizeFilter(f)

	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(f.Limit))
	q.Set("offset", strconv.Itoa(f.Offset))
	if s := sanitizeSearch(f.Search); s != "" {
		q.Set("or", fmt.Sprintf("(recipient_phone.like.*%s*,message_text.ilike.*%s*,sender_alias.ilike.*%s*)", s, s, s))
	}

	var rows []model.Message
	if err := l.get(ctx, "messages", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *BaaSLedger) MessagesSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	q := url.Values{}
	q.Set("select", "created_at")
	q.Set("user_id", "eq."+userID)
	q.Set("created_at", "gte."+since.UTC().Format(time.RFC3339))

	var rows []struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := l.get(ctx, "messages", q, &rows); err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.CreatedAt)
	}
	return out, nil
}

func (l *BaaSLedger) rpc(ctx context.Context, name string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/rest/v1/rpc/"+name, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return l.do(req, name, out)
}

func (l *BaaSLedger) get(ctx context.Context, table string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/rest/v1/"+table+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return l.do(req, table, out)
}

func (l *BaaSLedger) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", l.apiKey)

	bearer := accessToken(req.Context())
	if bearer == "" {
		bearer = l.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if err := json.Unmarshal(body, &ae); err == nil && ae.Message != "" {
			return &RPCError{Op: op, Status: resp.StatusCode, Message: ae.Message}
		}
		return fmt.Errorf("%s: unexpected status code: %d body=%q", op, resp.StatusCode, string(body))
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode json: %w body=%q", op, err, string(body))
	}
	return nil
}

// sanitizeSearch drops characters that carry meaning in the gateway's
// filter grammar.
func sanitizeSearch(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '"', '\\':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
