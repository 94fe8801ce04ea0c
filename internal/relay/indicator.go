package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ActionSender posts a transient chat status.
type ActionSender interface {
	SendAction(chatID int64) error
}

// Indicator keeps an "uploading" status alive in a chat while work is in
// flight. At most one loop runs per chat.
type Indicator struct {
	sender ActionSender
	clock  clockwork.Clock
	every  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	active map[int64]*indicatorLoop
}

type indicatorLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIndicator creates an indicator that repeats the action every interval.
func NewIndicator(sender ActionSender, clock clockwork.Clock, every time.Duration, logger *slog.Logger) *Indicator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if every <= 0 {
		every = 4 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{
		sender: sender,
		clock:  clock,
		every:  every,
		logger: logger,
		active: make(map[int64]*indicatorLoop),
	}
}

// Start cancels any loop already running for chatID and starts a new one.
// The returned stop func is idempotent and waits for the loop to exit.
func (i *Indicator) Start(ctx context.Context, chatID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	loop := &indicatorLoop{cancel: cancel, done: make(chan struct{})}

	i.mu.Lock()
	prev := i.active[chatID]
	i.active[chatID] = loop
	i.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go i.run(ctx, chatID, loop.done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-loop.done

			i.mu.Lock()
			if i.active[chatID] == loop {
				delete(i.active, chatID)
			}
			i.mu.Unlock()
		})
	}
}

// Active returns the number of chats with a running loop.
func (i *Indicator) Active() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.active)
}

func (i *Indicator) run(ctx context.Context, chatID int64, done chan struct{}) {
	defer close(done)

	ticker := i.clock.NewTicker(i.every)
	defer ticker.Stop()

	for {
		if err := i.sender.SendAction(chatID); err != nil {
			i.logger.Debug("chat action failed", "chat_id", chatID, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}
