// Package session owns the single authenticated Instagram client: lazy login,
// restore from a Store, and invalidation when the server rejects it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/pkg/instagram"
)

// Credentials for the authenticated account.
type Credentials struct {
	Username string
	Password string
}

// Manager hands out the shared client. Every access, including login, holds
// the same mutex so at most one request uses the account at a time.
type Manager struct {
	creds     Credentials
	store     Store
	newClient func() *instagram.Client
	logger    *slog.Logger

	mu     sync.Mutex
	client *instagram.Client
}

// NewManager creates a manager. newClient builds an unauthenticated client.
func NewManager(creds Credentials, store Store, newClient func() *instagram.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		creds:     creds,
		store:     store,
		newClient: newClient,
		logger:    logger.With("component", "session"),
	}
}

// Enabled reports whether credentials are configured.
func (m *Manager) Enabled() bool {
	return m.creds.Username != "" && m.creds.Password != ""
}

// Do runs fn with the authenticated client while holding the session lock.
// An ErrAuthRequired from fn invalidates the session before returning.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, c *instagram.Client) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.clientLocked(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, c)
	if errors.Is(err, domain.ErrAuthRequired) {
		m.logger.Warn("session rejected, resetting")
		m.invalidateLocked(ctx)
	}
	return err
}

// Invalidate drops the client and the persisted session.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked(ctx)
}

// Status describes the manager for readiness output.
type Status struct {
	Enabled  bool `json:"enabled"`
	LoggedIn bool `json:"logged_in"`
}

// Status returns whether a client is currently held.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Enabled: m.Enabled(), LoggedIn: m.client != nil}
}

func (m *Manager) clientLocked(ctx context.Context) (*instagram.Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	if !m.Enabled() {
		return nil, domain.ErrMissingCredentials
	}

	if c, ok := m.restore(ctx); ok {
		m.client = c
		return c, nil
	}

	c := m.newClient()
	if err := c.Login(ctx, m.creds.Username, m.creds.Password); err != nil {
		return nil, fmt.Errorf("fresh login: %w", err)
	}

	data, err := c.DumpSettings()
	if err == nil {
		err = m.store.Save(ctx, data)
	}
	if err != nil {
		// The login itself succeeded; only persistence failed.
		m.logger.Warn("failed to persist session", "error", err)
	}

	m.logger.Info("logged in", "username", m.creds.Username)
	m.client = c
	return c, nil
}

func (m *Manager) restore(ctx context.Context) (*instagram.Client, bool) {
	data, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.Warn("failed to load session", "error", err)
		}
		return nil, false
	}

	c := m.newClient()
	if err := c.LoadSettings(data); err != nil {
		m.logger.Warn("stored session unreadable, doing fresh login", "error", err)
		return nil, false
	}
	if err := c.Validate(ctx); err != nil {
		m.logger.Warn("session restore failed, doing fresh login", "error", err)
		return nil, false
	}

	m.logger.Info("session restored")
	return c, true
}

func (m *Manager) invalidateLocked(ctx context.Context) {
	m.client = nil
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear stored session", "error", err)
	}
}
