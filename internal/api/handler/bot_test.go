package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/telegram"
)

type recordingRelay struct {
	messages []domain.InboundMessage
	ctxErr   error
}

func (r *recordingRelay) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	r.messages = append(r.messages, msg)
	r.ctxErr = ctx.Err()
}

type fakeWebhook struct {
	setErr    error
	deleteErr error
	deleted   bool
	info      telegram.WebhookStatus
}

func (f *fakeWebhook) SetWebhook() (string, error) {
	if f.setErr != nil {
		return "", f.setErr
	}
	return "https://relay.example/123:SECRET", nil
}

func (f *fakeWebhook) DeleteWebhook() error {
	f.deleted = true
	return f.deleteErr
}

func (f *fakeWebhook) WebhookInfo() (telegram.WebhookStatus, error) {
	return f.info, nil
}

func TestBotHandler_Webhook(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsgs int
	}{
		{
			name:     "text message",
			body:     `{"update_id":1,"message":{"message_id":3,"date":0,"text":"https://x.com/a/status/1","chat":{"id":5,"type":"private"},"from":{"id":9,"is_bot":false,"first_name":"A"}}}`,
			wantCode: http.StatusOK,
			wantMsgs: 1,
		},
		{
			name:     "non-message update",
			body:     `{"update_id":2,"edited_message":{"message_id":3,"date":0,"text":"x","chat":{"id":5,"type":"private"}}}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "malformed",
			body:     `not json`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &recordingRelay{}
			h := NewBotHandler(relay, &fakeWebhook{}, testLogger())

			w := httptest.NewRecorder()
			h.Webhook(w, httptest.NewRequest(http.MethodPost, "/123:SECRET", strings.NewReader(tt.body)))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if len(relay.messages) != tt.wantMsgs {
				t.Errorf("messages = %d, want %d", len(relay.messages), tt.wantMsgs)
			}
		})
	}
}

func TestBotHandler_Webhook_ContextOutlivesRequest(t *testing.T) {
	relay := &recordingRelay{}
	h := NewBotHandler(relay, &fakeWebhook{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := `{"update_id":1,"message":{"message_id":3,"date":0,"text":"hi","chat":{"id":5,"type":"private"}}}`
	req := httptest.NewRequest(http.MethodPost, "/t", strings.NewReader(body)).WithContext(ctx)

	h.Webhook(httptest.NewRecorder(), req)

	if relay.ctxErr != nil {
		t.Errorf("relay context should not carry request cancellation, got %v", relay.ctxErr)
	}
}

func TestBotHandler_SetWebhook(t *testing.T) {
	wh := &fakeWebhook{info: telegram.WebhookStatus{URL: "https://relay.example/123:SECRET", PendingUpdateCount: 1}}
	h := NewBotHandler(&recordingRelay{}, wh, testLogger())

	w := httptest.NewRecorder()
	h.SetWebhook(w, httptest.NewRequest(http.MethodGet, "/set_webhook", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "SECRET") {
		t.Errorf("response leaks the bot token: %s", w.Body.String())
	}

	var resp WebhookResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "success" || resp.WebhookURL != "https://relay.example/<token>" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.WebhookInfo == nil || resp.WebhookInfo.PendingUpdateCount != 1 {
		t.Errorf("webhook_info = %+v", resp.WebhookInfo)
	}
}

func TestBotHandler_SetWebhook_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{telegram.ErrNoWebhookURL, http.StatusBadRequest},
		{errors.New("telegram down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := NewBotHandler(&recordingRelay{}, &fakeWebhook{setErr: tt.err}, testLogger())
		w := httptest.NewRecorder()
		h.SetWebhook(w, httptest.NewRequest(http.MethodGet, "/set_webhook", nil))
		if w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestBotHandler_DeleteWebhook(t *testing.T) {
	wh := &fakeWebhook{}
	h := NewBotHandler(&recordingRelay{}, wh, testLogger())

	w := httptest.NewRecorder()
	h.DeleteWebhook(w, httptest.NewRequest(http.MethodGet, "/delete_webhook", nil))

	if w.Code != http.StatusOK || !wh.deleted {
		t.Errorf("status = %d, deleted = %v", w.Code, wh.deleted)
	}

	wh.deleteErr = errors.New("nope")
	w = httptest.NewRecorder()
	h.DeleteWebhook(w, httptest.NewRequest(http.MethodGet, "/delete_webhook", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://relay.example/123:ABC", "https://relay.example/<token>"},
		{"https://relay.example/", "https://relay.example/"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := redactToken(tt.in); got != tt.want {
			t.Errorf("redactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
