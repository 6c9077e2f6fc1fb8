package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPSender posts messages as multipart form data to an external mail service. The message kind
// stays local; the service only sees the no-reply delivery type.
type HTTPSender struct {
	url    string
	client *http.Client
}

func NewHTTPSender(url string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{url: url, client: client}
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"to", msg.To},
		{"subject", msg.Subject},
		{"emailType", DeliveryNoReply},
		{"content", msg.HTML},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail service returned %d", resp.StatusCode)
	}
	return nil
}
