package relay

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/reelrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentText struct {
	chatID  int64
	text    string
	replyTo int
}

type sentMedia struct {
	chatID  int64
	path    string
	kind    domain.MediaKind
	caption string
}

// fakeChat records every outbound call.
type fakeChat struct {
	mu        sync.Mutex
	actions   int
	texts     []sentText
	media     []sentMedia
	deleted   []int
	nextID    int
	mediaErr  error
	deleteErr error
}

func (c *fakeChat) SendAction(chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions++
	return nil
}

func (c *fakeChat) SendMedia(chatID int64, path string, kind domain.MediaKind, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mediaErr != nil {
		return c.mediaErr
	}
	c.media = append(c.media, sentMedia{chatID, path, kind, caption})
	return nil
}

func (c *fakeChat) SendText(chatID int64, text string, replyTo int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.texts = append(c.texts, sentText{chatID, text, replyTo})
	return 1000 + c.nextID, nil
}

func (c *fakeChat) Delete(chatID int64, messageID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, messageID)
	return nil
}

func (c *fakeChat) actionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actions
}

func (c *fakeChat) deletedIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.deleted...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
