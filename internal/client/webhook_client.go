package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type Verdict int

const (
	Rejected Verdict = iota
	Delivered
	UserNotFound
)

func (v Verdict) String() string {
	switch v {
	case Delivered:
		return "delivered"
	case UserNotFound:
		return "user_not_found"
	default:
		return "rejected"
	}
}

// Delivery is how the webhook answered one send request.
type Delivery struct {
	Verdict Verdict
	// Raw is the stringified, normalized response field.
	Raw string
}

// Request is one message handed to the delivery webhook.
type Request struct {
	Phone     string
	Message   string
	UserID    string
	Alias     string
	MessageID string
}

type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendRequest struct {
	Telefone    string `json:"telefone"`
	Mensagem    string `json:"mensagem"`
	UserID      string `json:"user_id"`
	SenderAlias string `json:"sender_alias"`
	IDMensagem  string `json:"id_mensagem"`
}

type sendResponse struct {
	Response json.RawMessage `json:"response"`
}

var notFoundPhrases = []string{"não encontrado", "nao encontrado", "not found"}

func (c *WebhookClient) Send(ctx context.Context, r Request) (Delivery, error) {
	reqBody, err := json.Marshal(sendRequest{
		Telefone:    r.Phone,
		Mensagem:    r.Message,
		UserID:      r.UserID,
		SenderAlias: r.Alias,
		IDMensagem:  r.MessageID,
	})
	if err != nil {
		return Delivery{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return Delivery{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Delivery{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Delivery{}, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Delivery{}, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}

	return Classify(stringify(sr.Response)), nil
}

// Classify maps the webhook's response field to a verdict. Only an exact
// "true" counts as delivered.
func Classify(raw string) Delivery {
	// Casers keep state, so one per call. No trimming: " true " is not a delivery.
	v := cases.Fold().String(norm.NFC.String(raw))

	if v == "true" {
		return Delivery{Verdict: Delivered, Raw: v}
	}
	for _, p := range notFoundPhrases {
		if strings.Contains(v, p) {
			return Delivery{Verdict: UserNotFound, Raw: v}
		}
	}
	return Delivery{Verdict: Rejected, Raw: v}
}

// stringify renders the response field the way a loosely typed caller
// would: strings unquoted, everything else as its JSON text.
func stringify(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "undefined"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
