package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSender delivers outbound messages to the external chat gateway, which
// owns the actual platform session. HTTP status maps onto the outcome the
// dispatcher and deliverer classify on: 2xx delivered, 403 permanently
// blocked, anything else transient.
type HTTPSender struct {
	URL    string
	Client *http.Client
}

func NewHTTPSender(url string) *HTTPSender {
	return &HTTPSender{URL: url, Client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *HTTPSender) Send(ctx context.Context, userID int64, msg Message) (Outcome, error) {
	body := struct {
		UserID     int64  `json:"user_id"`
		Text       string `json:"text"`
		Attachment string `json:"attachment,omitempty"`
	}{UserID: userID, Text: msg.Text}
	if len(msg.Attachment) > 0 {
		body.Attachment = base64.StdEncoding.EncodeToString(msg.Attachment)
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return TransientError, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(buf))
	if err != nil {
		return TransientError, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return TransientError, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Delivered, nil
	case resp.StatusCode == http.StatusForbidden:
		return Blocked, fmt.Errorf("recipient %d unreachable", userID)
	default:
		return TransientError, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
}
