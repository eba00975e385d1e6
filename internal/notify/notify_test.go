package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	name string
	sent []Event
	err  error
}

func (c *recordingChannel) Name() string       { return c.name }
func (c *recordingChannel) IsConfigured() bool { return c.name != "" }
func (c *recordingChannel) Send(_ context.Context, evt Event) error {
	c.sent = append(c.sent, evt)
	return c.err
}

func TestDispatcherDefaultEvents(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	d := newDispatcher(nil, ch, &recordingChannel{})
	require.True(t, d.IsAnyConfigured())

	ctx := context.Background()
	d.Notify(ctx, BackupEvent("a.json", 3, 0, nil))
	d.Notify(ctx, BackupEvent("a.json", 0, 0, errors.New("disk full")))
	d.Notify(ctx, KeyRotatedEvent(1, 2, 3))

	require.Len(t, ch.sent, 2)
	assert.Equal(t, EventBackupFailed, ch.sent[0].Type)
	assert.Equal(t, EventKeyRotated, ch.sent[1].Type)
}

func TestDispatcherEventFilterAndSendErrors(t *testing.T) {
	failing := &recordingChannel{name: "bad", err: errors.New("offline")}
	ok := &recordingChannel{name: "ok"}
	d := newDispatcher([]string{EventBackupCompleted}, failing, ok)

	d.Notify(context.Background(), BackupEvent("a.json", 2, 1, nil))
	d.Notify(context.Background(), KeyRotatedEvent(1, 1, 1))

	require.Len(t, ok.sent, 1)
	assert.Len(t, failing.sent, 1)
	assert.Equal(t, "warning", ok.sent[0].Level)
	assert.Contains(t, ok.sent[0].Body, "1 skipped")
}

func TestDispatcherWithNothingConfigured(t *testing.T) {
	d := NewDispatcher(config.NotifyConfig{})
	assert.False(t, d.IsAnyConfigured())
	d.Notify(context.Background(), KeyRotatedEvent(0, 0, 0))
}

func TestWebhookSignsBody(t *testing.T) {
	var gotSig string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: "s3cret"})
	wh.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, wh.Send(context.Background(), BackupEvent("b.json", 4, 0, nil)))

	assert.Equal(t, "sha256="+Sign("s3cret", body), gotSig)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, EventBackupCompleted, payload["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", payload["ts"])
}

func TestWebhookAndSlackReportHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL}).Send(context.Background(), Event{Type: EventKeyRotated})
	assert.ErrorContains(t, err, "500")
	err = NewSlack(config.SlackNotifyConfig{WebhookURL: srv.URL}).Send(context.Background(), Event{Type: EventKeyRotated})
	assert.ErrorContains(t, err, "500")
}

func TestSlackPayload(t *testing.T) {
	var payload struct {
		Text        string           `json:"text"`
		Attachments []map[string]any `json:"attachments"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer srv.Close()

	s := NewSlack(config.SlackNotifyConfig{WebhookURL: srv.URL})
	require.NoError(t, s.Send(context.Background(), BackupEvent("c.json", 0, 0, errors.New("s3: denied"))))
	assert.Equal(t, "assessmaker backup failed", payload.Text)
	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, "#FF0000", payload.Attachments[0]["color"])
	assert.Equal(t, "s3: denied", payload.Attachments[0]["text"])
}
