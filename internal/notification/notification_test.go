package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fuomag9/meshwatch/internal/models"
)

type fakeStore struct {
	linked   []models.Notification
	defaults []models.Notification
}

func (f *fakeStore) NotificationsForMonitor(ctx context.Context, monitorID int) ([]models.Notification, error) {
	return f.linked, nil
}

func (f *fakeStore) DefaultNotifications(ctx context.Context) ([]models.Notification, error) {
	return f.defaults, nil
}

// hookRecorder is a webhook endpoint that remembers decoded payloads.
type hookRecorder struct {
	mu       sync.Mutex
	payloads []webhookPayload
	headers  []http.Header
	status   int
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	_ = json.NewDecoder(r.Body).Decode(&p)
	h.mu.Lock()
	h.payloads = append(h.payloads, p)
	h.headers = append(h.headers, r.Header.Clone())
	h.mu.Unlock()
	if h.status != 0 {
		w.WriteHeader(h.status)
	}
}

func testMonitor() *models.Monitor {
	return &models.Monitor{ID: 4, Name: "edge-router", Type: "tailscale-ping", Hostname: "edge-router"}
}

func downBeat() *models.Heartbeat {
	return &models.Heartbeat{
		MonitorID: 4,
		Status:    models.StatusDown,
		Important: true,
		Message:   `ping timed out: "edge-router: timed out"`,
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(testMonitor(), downBeat())

	assert.Equal(t, "[tailscale-ping] edge-router is DOWN", msg.Title)
	assert.Equal(t, "down", msg.Status)
	assert.Equal(t, "2026-03-01T12:00:00Z", msg.Time)
	assert.True(t, msg.Important)

	text := FormatMessage(msg)
	assert.Contains(t, text, "Monitor: edge-router")
	assert.Contains(t, text, "edge-router: timed out")
	assert.NotContains(t, text, "Latency")
}

func TestWebhookProvider_Send(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	p := &WebhookProvider{Client: srv.Client()}
	notif := &models.Notification{Type: "webhook", Active: true, Config: map[string]interface{}{
		"webhook_url": srv.URL,
		"headers":     map[string]interface{}{"X-Token": "abc"},
	}}

	require.NoError(t, p.Send(context.Background(), notif, NewMessage(testMonitor(), downBeat())))

	require.Len(t, rec.payloads, 1)
	assert.Equal(t, "down", rec.payloads[0].Status)
	assert.Equal(t, 4, rec.payloads[0].MonitorID)
	assert.Equal(t, "edge-router", rec.payloads[0].Hostname)
	assert.Equal(t, "application/json", rec.headers[0].Get("Content-Type"))
	assert.Equal(t, "abc", rec.headers[0].Get("X-Token"))
}

func TestWebhookProvider_SequentialPayloads(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	p := &WebhookProvider{Client: srv.Client()}
	notif := &models.Notification{Config: map[string]interface{}{"webhook_url": srv.URL}}

	down := downBeat()
	up := &models.Heartbeat{MonitorID: 4, Status: models.StatusUp, Ping: 23, Important: true, Time: down.Time}

	require.NoError(t, p.Send(context.Background(), notif, NewMessage(testMonitor(), down)))
	require.NoError(t, p.Send(context.Background(), notif, NewMessage(testMonitor(), up)))

	require.Len(t, rec.payloads, 2)
	assert.Equal(t, "down", rec.payloads[0].Status)
	assert.Equal(t, 0, rec.payloads[0].Ping)
	assert.Equal(t, "up", rec.payloads[1].Status)
	assert.Equal(t, 23, rec.payloads[1].Ping)
}

func TestWebhookProvider_EarlyReply(t *testing.T) {
	// replies without reading the request body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := &WebhookProvider{Client: srv.Client()}
	notif := &models.Notification{Config: map[string]interface{}{"webhook_url": srv.URL}}

	for i := 0; i < 5; i++ {
		assert.NoError(t, p.Send(context.Background(), notif, NewMessage(testMonitor(), downBeat())))
	}
}

func TestWebhookProvider_Errors(t *testing.T) {
	rec := &hookRecorder{status: http.StatusBadGateway}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	p := &WebhookProvider{Client: srv.Client()}
	msg := NewMessage(testMonitor(), downBeat())

	err := p.Send(context.Background(), &models.Notification{Config: map[string]interface{}{"webhook_url": srv.URL}}, msg)
	assert.ErrorContains(t, err, "status 502")

	err = p.Send(context.Background(), &models.Notification{Config: map[string]interface{}{}}, msg)
	assert.ErrorContains(t, err, "webhook_url is required")

	assert.Error(t, p.Validate(map[string]interface{}{}))
	assert.NoError(t, p.Validate(map[string]interface{}{"webhook_url": "http://x"}))
}

func TestNtfyProvider_Send(t *testing.T) {
	var (
		gotPath, gotPriority, gotAuth, gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPriority = r.Header.Get("Priority")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	p := &NtfyProvider{Client: srv.Client()}
	notif := &models.Notification{Config: map[string]interface{}{
		"server_url": srv.URL + "/",
		"topic":      "tailnet",
		"token":      "tk_123",
	}}

	require.NoError(t, p.Send(context.Background(), notif, NewMessage(testMonitor(), downBeat())))
	assert.Equal(t, "/tailnet", gotPath)
	assert.Equal(t, "4", gotPriority)
	assert.Equal(t, "Bearer tk_123", gotAuth)
	assert.Contains(t, gotBody, "edge-router is DOWN")
}

func TestDispatcher_FallsBackToDefaults(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	store := &fakeStore{defaults: []models.Notification{
		{ID: 1, Name: "ops", Type: "webhook", Active: true, Config: map[string]interface{}{"webhook_url": srv.URL}},
		{ID: 2, Name: "muted", Type: "webhook", Active: false, Config: map[string]interface{}{"webhook_url": srv.URL}},
	}}
	d := NewDispatcher(store, zap.NewNop())

	require.NoError(t, d.Notify(context.Background(), testMonitor(), downBeat()))
	assert.Len(t, rec.payloads, 1, "inactive notifications are skipped")
}

func TestDispatcher_LinkedNotificationsWin(t *testing.T) {
	linked := &hookRecorder{}
	fallback := &hookRecorder{}
	linkedSrv := httptest.NewServer(linked)
	defer linkedSrv.Close()
	fallbackSrv := httptest.NewServer(fallback)
	defer fallbackSrv.Close()

	store := &fakeStore{
		linked:   []models.Notification{{Name: "team", Type: "webhook", Active: true, Config: map[string]interface{}{"webhook_url": linkedSrv.URL}}},
		defaults: []models.Notification{{Name: "ops", Type: "webhook", Active: true, Config: map[string]interface{}{"webhook_url": fallbackSrv.URL}}},
	}
	d := NewDispatcher(store, zap.NewNop())

	require.NoError(t, d.Notify(context.Background(), testMonitor(), downBeat()))
	assert.Len(t, linked.payloads, 1)
	assert.Empty(t, fallback.payloads)
}

func TestDispatcher_AggregatesFailures(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	store := &fakeStore{linked: []models.Notification{
		{Name: "ok", Type: "webhook", Active: true, Config: map[string]interface{}{"webhook_url": srv.URL}},
		{Name: "pager", Type: "carrier-pigeon", Active: true},
	}}
	d := NewDispatcher(store, zap.NewNop())

	err := d.Notify(context.Background(), testMonitor(), downBeat())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1/2")
	assert.Contains(t, err.Error(), "unknown notification provider: carrier-pigeon")
	assert.Len(t, rec.payloads, 1)
}

func TestProviderNames(t *testing.T) {
	assert.Subset(t, ProviderNames(), []string{"ntfy", "webhook"})
}
