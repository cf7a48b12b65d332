package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dossier/internal/broker"
)

// WebhookDeliverer POSTs {jobId} to the consumer endpoint, authenticated as
// the broker.
type WebhookDeliverer struct {
	URL    string
	Token  *broker.Token
	Client *http.Client
}

func NewWebhookDeliverer(url string, token *broker.Token) *WebhookDeliverer {
	return &WebhookDeliverer{
		URL:    url,
		Token:  token,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, jobID string) error {
	body, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Token != nil {
		tok, err := d.Token.Sign(jobID)
		if err != nil {
			return fmt.Errorf("sign dispatch token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("consumer endpoint returned %d", resp.StatusCode)
	}
	return nil
}
