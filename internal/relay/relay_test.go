package relay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iconidentify/reelrelay/internal/classifier"
	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/ratelimit"
	"github.com/iconidentify/reelrelay/internal/worker"
)

// inlineJobs runs jobs synchronously.
type inlineJobs struct{}

func (inlineJobs) Submit(job worker.Job) error {
	job.Run(context.Background())
	return nil
}

type rejectingJobs struct{}

func (rejectingJobs) Submit(worker.Job) error { return worker.ErrQueueFull }

type fakeDownloader struct {
	result func() domain.Result
	calls  int
}

func (d *fakeDownloader) Download(ctx context.Context, src domain.PlatformURL) domain.Result {
	d.calls++
	return d.result()
}

func mediaFile(t *testing.T, kind domain.MediaKind) func() domain.Result {
	return func() domain.Result {
		path := filepath.Join(t.TempDir(), "media.bin")
		os.WriteFile(path, []byte("data"), 0644)
		return domain.Success(path, kind, 4)
	}
}

func failure(reason domain.FailureReason) func() domain.Result {
	return func() domain.Result { return domain.Failure(reason) }
}

type relayFixture struct {
	relay *Relay
	chat  *fakeChat
	dl    *fakeDownloader
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T, jobs Submitter, result func() domain.Result, limit int) *relayFixture {
	t.Helper()
	chat := &fakeChat{}
	clock := clockwork.NewFakeClock()
	dl := &fakeDownloader{result: result}
	r := New(Config{NoticeTTL: 10 * time.Second, MaxFileSize: 50 << 20}, Deps{
		Chat:       chat,
		Classifier: classifier.New(),
		Limiter:    ratelimit.NewWithClock(ratelimit.Config{Limit: limit, Window: time.Hour, Cooldown: 30 * time.Minute}, clock),
		Downloader: dl,
		Jobs:       jobs,
		Clock:      clock,
		Logger:     testLogger(),
	})
	return &relayFixture{relay: r, chat: chat, dl: dl, clock: clock}
}

func linkMessage(group bool) domain.InboundMessage {
	return domain.InboundMessage{
		ChatID:    -100,
		MessageID: 7,
		SenderID:  42,
		Username:  "alice",
		Text:      "look https://www.instagram.com/reel/C1a2B3c4D5e/ !",
		Group:     group,
	}
}

func TestHandleMessage_IgnoresPlainText(t *testing.T) {
	f := newFixture(t, inlineJobs{}, mediaFile(t, domain.MediaVideo), 50)

	f.relay.HandleMessage(context.Background(), domain.InboundMessage{ChatID: 1, MessageID: 1, SenderID: 1, Text: "hello there"})
	f.relay.HandleMessage(context.Background(), domain.InboundMessage{ChatID: 1, MessageID: 2, SenderID: 1})

	if f.dl.calls != 0 || len(f.chat.texts) != 0 {
		t.Errorf("plain text should be ignored: downloads=%d texts=%d", f.dl.calls, len(f.chat.texts))
	}
}

func TestHandleMessage_RelaysVideoInGroup(t *testing.T) {
	f := newFixture(t, inlineJobs{}, mediaFile(t, domain.MediaVideo), 50)

	f.relay.HandleMessage(context.Background(), linkMessage(true))

	if len(f.chat.media) != 1 {
		t.Fatalf("media sent = %d, want 1", len(f.chat.media))
	}
	sent := f.chat.media[0]
	if sent.kind != domain.MediaVideo || sent.caption != "📲 @alice" {
		t.Errorf("sent = %+v", sent)
	}
	if _, err := os.Stat(sent.path); !os.IsNotExist(err) {
		t.Error("delivered file should be cleaned up after sending")
	}
	if ids := f.chat.deletedIDs(); len(ids) != 1 || ids[0] != 7 {
		t.Errorf("deleted = %v, want original message 7", ids)
	}
}

func TestHandleMessage_PrivateChatHasNoCaption(t *testing.T) {
	f := newFixture(t, inlineJobs{}, mediaFile(t, domain.MediaPhoto), 50)

	f.relay.HandleMessage(context.Background(), linkMessage(false))

	if len(f.chat.media) != 1 || f.chat.media[0].caption != "" || f.chat.media[0].kind != domain.MediaPhoto {
		t.Errorf("media = %+v", f.chat.media)
	}
}

func TestHandleMessage_FailureNotices(t *testing.T) {
	tests := []struct {
		name   string
		reason domain.FailureReason
		want   string
	}{
		{"download failed", domain.ReasonDownloadFailed, "приватне або недоступне"},
		{"no media", domain.ReasonNoMediaFound, "приватне або недоступне"},
		{"too large", domain.ReasonTooLarge, "понад 50 МБ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, inlineJobs{}, failure(tt.reason), 50)

			f.relay.HandleMessage(context.Background(), linkMessage(true))

			if len(f.chat.texts) != 1 || !strings.Contains(f.chat.texts[0].text, tt.want) {
				t.Fatalf("texts = %+v, want one containing %q", f.chat.texts, tt.want)
			}
			if f.chat.texts[0].replyTo != 7 {
				t.Errorf("notice should reply to the original message")
			}
			if len(f.chat.deletedIDs()) != 0 {
				t.Error("original message must stay when relay failed")
			}

			f.clock.Advance(10 * time.Second)
			waitFor(t, "notice deletion", func() bool {
				ids := f.chat.deletedIDs()
				return len(ids) == 1 && ids[0] == 1001
			})
		})
	}
}

func TestHandleMessage_SendFailureKeepsOriginal(t *testing.T) {
	f := newFixture(t, inlineJobs{}, mediaFile(t, domain.MediaVideo), 50)
	f.chat.mediaErr = errors.New("Request Entity Too Large")

	f.relay.HandleMessage(context.Background(), linkMessage(true))

	if len(f.chat.texts) != 1 || f.chat.texts[0].text != msgSendFailed {
		t.Fatalf("texts = %+v, want send-failed notice", f.chat.texts)
	}
	if len(f.chat.deletedIDs()) != 0 {
		t.Error("original message must stay when send failed")
	}
}

func TestHandleMessage_DeleteFailureIsTolerated(t *testing.T) {
	f := newFixture(t, inlineJobs{}, mediaFile(t, domain.MediaVideo), 50)
	f.chat.deleteErr = errors.New("not enough rights")

	f.relay.HandleMessage(context.Background(), linkMessage(true))

	if len(f.chat.media) != 1 || len(f.chat.texts) != 0 {
		t.Errorf("media=%d texts=%d, want media sent and no notice", len(f.chat.media), len(f.chat.texts))
	}
}

func TestHandleMessage_RateLimited(t *testing.T) {
	f := newFixture(t, inlineJobs{}, mediaFile(t, domain.MediaVideo), 2)

	for i := 0; i < 3; i++ {
		f.relay.HandleMessage(context.Background(), linkMessage(false))
	}

	if f.dl.calls != 2 {
		t.Errorf("downloads = %d, want 2", f.dl.calls)
	}
	if len(f.chat.texts) != 1 || f.chat.texts[0].text != msgRateLimited(30) {
		t.Errorf("texts = %+v, want one rate-limit notice", f.chat.texts)
	}
}

func TestHandleMessage_QueueFull(t *testing.T) {
	f := newFixture(t, rejectingJobs{}, mediaFile(t, domain.MediaVideo), 50)

	f.relay.HandleMessage(context.Background(), linkMessage(false))

	if f.dl.calls != 0 {
		t.Error("download must not run when the queue is full")
	}
	if len(f.chat.texts) != 1 || f.chat.texts[0].text != msgBusy {
		t.Errorf("texts = %+v, want busy notice", f.chat.texts)
	}
}

func TestHandleMessage_QueueFullDoesNotUseQuota(t *testing.T) {
	f := newFixture(t, rejectingJobs{}, mediaFile(t, domain.MediaVideo), 1)

	for i := 0; i < 3; i++ {
		f.relay.HandleMessage(context.Background(), linkMessage(false))
	}

	if len(f.chat.texts) != 3 {
		t.Fatalf("texts = %+v, want three notices", f.chat.texts)
	}
	for i, sent := range f.chat.texts {
		if sent.text != msgBusy {
			t.Errorf("notice %d = %q, want busy notice", i, sent.text)
		}
	}
}

func TestHandleMessage_ThroughWorkerPool(t *testing.T) {
	pool := worker.NewPool(worker.Config{Workers: 1, QueueSize: 4}, nil, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	f := newFixture(t, pool, mediaFile(t, domain.MediaVideo), 50)
	f.relay.HandleMessage(context.Background(), linkMessage(true))

	waitFor(t, "original deletion", func() bool { return len(f.chat.deletedIDs()) == 1 })
}
