package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSenderOutcomes(t *testing.T) {
	status := http.StatusOK
	var got struct {
		UserID     int64  `json:"user_id"`
		Text       string `json:"text"`
		Attachment string `json:"attachment"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL)
	ctx := context.Background()

	out, err := s.Send(ctx, 42, Message{Text: "hi", Attachment: []byte("img")})
	if err != nil || out != Delivered {
		t.Fatalf("2xx: want Delivered, got %v, %v", out, err)
	}
	if got.UserID != 42 || got.Text != "hi" {
		t.Fatalf("bad request body: %+v", got)
	}
	if got.Attachment != base64.StdEncoding.EncodeToString([]byte("img")) {
		t.Fatalf("attachment not base64 encoded: %q", got.Attachment)
	}

	status = http.StatusForbidden
	out, err = s.Send(ctx, 42, Message{Text: "hi"})
	if err == nil || out != Blocked {
		t.Fatalf("403: want Blocked, got %v, %v", out, err)
	}

	status = http.StatusBadGateway
	out, err = s.Send(ctx, 42, Message{Text: "hi"})
	if err == nil || out != TransientError {
		t.Fatalf("502: want TransientError, got %v, %v", out, err)
	}
}

func TestHTTPSenderUnreachableGateway(t *testing.T) {
	s := NewHTTPSender("http://127.0.0.1:1/send")
	out, err := s.Send(context.Background(), 42, Message{Text: "hi"})
	if err == nil || out != TransientError {
		t.Fatalf("want TransientError, got %v, %v", out, err)
	}
}
