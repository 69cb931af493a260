package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookClient_Send_PostsDeliveryRequest(t *testing.T) {
	t.Parallel()

	var (
		method, contentType string
		body                []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"TRUE"}`))
	}))
	defer srv.Close()

	d, err := NewWebhookClient(srv.URL, time.Second).Send(context.Background(), Request{
		Phone:     "11999999999",
		Message:   "oi",
		UserID:    "u-1",
		Alias:     "an anonymous admirer",
		MessageID: "m-1",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if d.Verdict != Delivered {
		t.Fatalf("expected Delivered, got %v (%q)", d.Verdict, d.Raw)
	}
	if method != http.MethodPost || contentType != "application/json" {
		t.Fatalf("unexpected request %s %q", method, contentType)
	}

	var got sendRequest
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("request body is not json: %v body=%q", err, body)
	}
	want := sendRequest{
		Telefone:    "11999999999",
		Mensagem:    "oi",
		UserID:      "u-1",
		SenderAlias: "an anonymous admirer",
		IDMensagem:  "m-1",
	}
	if got != want {
		t.Fatalf("request body = %+v, want %+v", got, want)
	}
}

func TestWebhookClient_Send_Verdicts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		want    Verdict
		wantRaw string
	}{
		{"string true", `{"response":"true"}`, Delivered, "true"},
		{"json true", `{"response":true}`, Delivered, "true"},
		{"json false", `{"response":false}`, Rejected, "false"},
		{"user not found", `{"response":"Usuario NÃO ENCONTRADO"}`, UserNotFound, "usuario não encontrado"},
		{"no response field", `{"status":"ok"}`, Rejected, "undefined"},
		{"null response", `{"response":null}`, Rejected, "null"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			d, err := NewWebhookClient(srv.URL, time.Second).Send(context.Background(), Request{})
			if err != nil {
				t.Fatalf("Send() error: %v", err)
			}
			if d.Verdict != tc.want || d.Raw != tc.wantRaw {
				t.Fatalf("got %v %q, want %v %q", d.Verdict, d.Raw, tc.want, tc.wantRaw)
			}
		})
	}
}

func TestWebhookClient_Send_TransportFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   []string
	}{
		{"server error", http.StatusInternalServerError, "workflow crashed", []string{"unexpected status code: 500", `body="workflow crashed"`}},
		{"bad gateway", http.StatusBadGateway, "", []string{"unexpected status code: 502"}},
		{"not json", http.StatusOK, "THIS IS NOT JSON", []string{"failed to decode json", `body="THIS IS NOT JSON"`}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewWebhookClient(srv.URL, time.Second).Send(context.Background(), Request{})
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			for _, frag := range tc.want {
				if !strings.Contains(err.Error(), frag) {
					t.Fatalf("expected %q in error, got: %v", frag, err)
				}
			}
		})
	}
}

func TestWebhookClient_Send_HonorsCallerDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewWebhookClient(srv.URL, 10*time.Second).Send(ctx, Request{})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Send outlived the caller deadline")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want Verdict
	}{
		{"true", Delivered},
		{"TRUE", Delivered},
		{" true ", Rejected},
		{"true\n", Rejected},
		{"false", Rejected},
		{"truee", Rejected},
		{"1", Rejected},
		{"null", Rejected},
		{"usuario não encontrado", UserNotFound},
		// decomposed Ã (A + combining tilde)
		{"NÃO ENCONTRADO", UserNotFound},
		{"user not found", UserNotFound},
	}

	for _, tc := range cases {
		if got := Classify(tc.raw).Verdict; got != tc.want {
			t.Fatalf("Classify(%q): expected %v, got %v", tc.raw, tc.want, got)
		}
	}
}
