package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestMessageRaw(t *testing.T) {
	m := Message{To: "jane@acme.com", Company: "Acme", Body: "Hi Jane,\nshort note.", SenderName: "Sam"}
	want := "To: jane@acme.com\r\nSubject: Quick question about Acme\r\n" +
		"MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n" +
		"Hi Jane,\nshort note.\r\n\r\nBest regards,\r\nSam"
	if got := m.Raw(); got != want {
		t.Errorf("Raw:\n got %q\nwant %q", got, want)
	}
}

func TestMessageRaw_HeaderInjection(t *testing.T) {
	m := Message{To: "jane@acme.com\r\nBcc: spy@evil.io", Company: "Acme\r\nBcc: spy@evil.io", Body: "hi", SenderName: "Sam"}
	raw := m.Raw()
	head, _, _ := strings.Cut(raw, "\r\n\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") {
			t.Fatalf("injected header line %q in:\n%s", line, head)
		}
	}
	if !strings.Contains(head, "Subject: Quick question about Acme Bcc: spy@evil.io") {
		t.Errorf("subject not folded to one line:\n%s", head)
	}
}

func TestMessageRaw_EncodesNonASCIISubject(t *testing.T) {
	m := Message{To: "a@b.c", Company: "Zürich Café", Body: "Grüße", SenderName: "Sam"}
	raw := m.Raw()
	if !strings.Contains(raw, "Subject: =?utf-8?q?") {
		t.Errorf("subject not RFC 2047 encoded: %q", raw)
	}
	dec, err := new(mime.WordDecoder).DecodeHeader(strings.TrimPrefix(strings.Split(raw, "\r\n")[1], "Subject: "))
	if err != nil || dec != "Quick question about Zürich Café" {
		t.Errorf("decoded subject = %q, %v", dec, err)
	}
	if !strings.Contains(raw, `charset="UTF-8"`) {
		t.Error("missing charset header")
	}
}

func TestMessageSubject_FallsBackWithoutCompany(t *testing.T) {
	if got := (Message{Company: "  "}).Subject(); got != "Quick question about your company" {
		t.Errorf("got %q", got)
	}
}

func TestMessageEncode_IsURLSafe(t *testing.T) {
	m := Message{To: "a@b.c", Body: strings.Repeat("??>>", 50), SenderName: "x"}
	enc := m.Encode()
	if strings.ContainsAny(enc, "+/") {
		t.Errorf("encoding contains non url-safe characters: %q", enc)
	}
	dec, err := base64.URLEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(dec) != m.Raw() {
		t.Error("round trip mismatch")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&googleapi.Error{Code: 401}, MsgReconnect},
		{fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 403}), MsgPermissions},
		{&googleapi.Error{Code: 429}, MsgRateLimited},
		{&googleapi.Error{Code: 400, Message: "Invalid To header"}, "Invalid To header"},
		{errors.New("dial tcp: timeout"), "dial tcp: timeout"},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestClientSend(t *testing.T) {
	var gotAuth, gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Raw string `json:"raw"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		gotRaw = body.Raw
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg-1"}`)
	}))
	defer srv.Close()

	c := NewClient(option.WithEndpoint(srv.URL + "/"))
	m := Message{To: "jane@acme.com", Body: "hello", SenderName: "Sam"}
	if err := c.Send(context.Background(), &oauth2.Token{AccessToken: "at-1"}, m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer at-1" {
		t.Errorf("authorization: got %q", gotAuth)
	}
	if gotRaw != m.Encode() {
		t.Error("raw payload mismatch")
	}
}

func TestClientSend_ProviderErrorIsClassifiable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	}))
	defer srv.Close()

	err := NewClient(option.WithEndpoint(srv.URL+"/")).
		Send(context.Background(), &oauth2.Token{AccessToken: "revoked"}, Message{To: "x@y.z"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ClassifyError(err); got != MsgReconnect {
		t.Errorf("ClassifyError: got %q", got)
	}
}
