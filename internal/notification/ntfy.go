package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fuomag9/meshwatch/internal/models"
)

// NtfyProvider publishes alerts to an ntfy topic (self-hosted or ntfy.sh)
type NtfyProvider struct {
	Client *http.Client
}

func init() {
	RegisterProvider(&NtfyProvider{Client: &http.Client{Timeout: 10 * time.Second}})
}

func (n *NtfyProvider) Name() string {
	return "ntfy"
}

func (n *NtfyProvider) Send(ctx context.Context, notification *models.Notification, message *Message) error {
	serverURL, _ := notification.Config["server_url"].(string)
	topic, _ := notification.Config["topic"].(string)
	priority, _ := notification.Config["priority"].(float64)
	token, _ := notification.Config["token"].(string)

	if serverURL == "" {
		serverURL = "https://ntfy.sh"
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	if priority == 0 {
		priority = 3
		if message.Status == "down" {
			priority = 4
		}
	}

	url := strings.TrimRight(serverURL, "/") + "/" + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(FormatMessage(message)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Title", message.Title)
	req.Header.Set("Priority", strconv.Itoa(int(priority)))
	req.Header.Set("Tags", tagsForStatus(message.Status))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy server returned status %d", resp.StatusCode)
	}

	return nil
}

func (n *NtfyProvider) Validate(config map[string]interface{}) error {
	topic, ok := config["topic"].(string)
	if !ok || topic == "" {
		return fmt.Errorf("topic is required")
	}
	return nil
}

func tagsForStatus(status string) string {
	switch status {
	case "up":
		return "white_check_mark"
	case "down":
		return "x,warning"
	case "pending":
		return "hourglass"
	default:
		return "information_source"
	}
}
