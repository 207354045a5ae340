package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/fuomag9/meshwatch/internal/models"
)

// WebhookProvider posts alerts as JSON
type WebhookProvider struct {
	Client *http.Client
}

func init() {
	RegisterProvider(&WebhookProvider{Client: &http.Client{Timeout: 10 * time.Second}})
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	MonitorID   int    `json:"monitor_id"`
	MonitorName string `json:"monitor_name"`
	Hostname    string `json:"hostname"`
	Status      string `json:"status"`
	Ping        int    `json:"ping"`
	Time        string `json:"time"`
	Important   bool   `json:"important"`
}

func (w *WebhookProvider) Send(ctx context.Context, notification *models.Notification, message *Message) error {
	url, _ := notification.Config["webhook_url"].(string)
	method, _ := notification.Config["method"].(string)
	customHeaders, _ := notification.Config["headers"].(map[string]interface{})

	if url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if method == "" {
		method = http.MethodPost
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	err := json.NewEncoder(buf).Encode(webhookPayload{
		Title:       message.Title,
		Body:        message.Body,
		MonitorID:   message.MonitorID,
		MonitorName: message.MonitorName,
		Hostname:    message.Hostname,
		Status:      message.Status,
		Ping:        message.Ping,
		Time:        message.Time,
		Important:   message.Important,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// the transport may still be reading the body after Do returns
	body := append([]byte(nil), buf.B...)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "meshwatch/1.0")
	for key, value := range customHeaders {
		if strValue, ok := value.(string); ok {
			req.Header.Set(key, strValue)
		}
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (w *WebhookProvider) Validate(config map[string]interface{}) error {
	url, ok := config["webhook_url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	return nil
}
