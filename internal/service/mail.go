package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guttosm/rental-manager/internal/fetch"
	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/pool"
)

// Message is one unseen guest email.
type Message struct {
	ID      string    `json:"id"`
	Folder  string    `json:"folder"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	Date    time.Time `json:"date"`
	Body    string    `json:"body"`
}

// MailSession is an open connection to a mailbox.
type MailSession interface {
	// Fetch returns up to limit of the newest unseen messages in folder.
	Fetch(ctx context.Context, folder string, limit int) ([]Message, error)
	Close() error
}

// MailDialer opens mailbox sessions.
type MailDialer interface {
	Dial(ctx context.Context) (MailSession, error)
}

// MailConfig holds MailService configuration.
type MailConfig struct {
	// Sessions bounds open mailbox sessions.
	Sessions int
	// Concurrency bounds folders fetched at once. Defaults to Sessions.
	Concurrency int
	// FetchLimit caps messages per folder.
	FetchLimit int
	// AcquireTimeout bounds the wait for a session.
	AcquireTimeout time.Duration
	// IdleTimeout is how long an unused session stays open.
	IdleTimeout time.Duration
}

// FolderResult is the outcome of fetching one folder.
type FolderResult struct {
	Folder   string    `json:"folder"`
	Messages []Message `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
	Err      error     `json:"-"`
}

// ProcessedMessage pairs a message with what was extracted from its body.
type ProcessedMessage struct {
	Message  Message  `json:"message"`
	Entities Entities `json:"entities"`
}

// MailService fetches guest mail over a pool of sessions.
type MailService struct {
	pool        *pool.Pool[MailSession]
	coordinator *fetch.Coordinator[MailSession]
	fetchLimit  int
	idleTimeout time.Duration
}

// NewMailService creates a MailService. Sessions are dialed lazily.
func NewMailService(dialer MailDialer, cfg MailConfig) (*MailService, error) {
	if dialer == nil {
		return nil, errors.New("mail dialer is required")
	}
	if cfg.Sessions <= 0 {
		cfg.Sessions = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.Sessions
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 50
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}

	p, err := pool.New(pool.Config[MailSession]{
		Name:    "mail",
		MaxSize: cfg.Sessions,
		Factory: func(ctx context.Context) (MailSession, error) {
			return dialer.Dial(ctx)
		},
		Close: func(s MailSession) error {
			return s.Close()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mail session pool: %w", err)
	}

	return &MailService{
		pool: p,
		coordinator: fetch.NewCoordinator(p, fetch.Options{
			Limit:          cfg.Concurrency,
			AcquireTimeout: cfg.AcquireTimeout,
		}),
		fetchLimit:  cfg.FetchLimit,
		idleTimeout: cfg.IdleTimeout,
	}, nil
}

// FetchFolders fetches unseen messages from every folder concurrently.
// Results are in folder order; one folder failing does not affect the others.
func (s *MailService) FetchFolders(ctx context.Context, folders []string) []FolderResult {
	requests := make([]fetch.Request[MailSession, []Message], len(folders))
	for i, folder := range folders {
		requests[i] = func(ctx context.Context, session MailSession) ([]Message, error) {
			return session.Fetch(ctx, folder, s.fetchLimit)
		}
	}

	results := fetch.FetchMany(ctx, s.coordinator, requests, fetch.Options{})

	out := make([]FolderResult, len(results))
	for i, r := range results {
		out[i] = FolderResult{Folder: folders[i], Messages: r.Value, Err: r.Err}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

// FetchAndProcess fetches every folder and runs extraction on each message
// body. Folders that fail to fetch are logged and skipped.
func (s *MailService) FetchAndProcess(ctx context.Context, folders []string, text *TextService) ([]ProcessedMessage, error) {
	var messages []Message
	for _, r := range s.FetchFolders(ctx, folders) {
		if r.Err != nil {
			log := logger.Component("mail")
			log.Warn().Str("folder", r.Folder).Err(r.Err).Msg("Skipping folder")
			continue
		}
		messages = append(messages, r.Messages...)
	}
	if len(messages) == 0 {
		return nil, ctx.Err()
	}

	bodies := make([]string, len(messages))
	for i, m := range messages {
		bodies[i] = m.Body
	}
	entities, err := text.ProcessBatch(ctx, bodies)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessedMessage, len(messages))
	for i := range messages {
		out[i] = ProcessedMessage{Message: messages[i], Entities: entities[i]}
	}
	return out, nil
}

// CleanupIdle closes sessions unused for longer than the idle timeout.
func (s *MailService) CleanupIdle() int {
	return s.pool.CloseIdle(s.idleTimeout)
}

// Pool returns the session pool.
func (s *MailService) Pool() *pool.Pool[MailSession] {
	return s.pool
}

// Close closes every session.
func (s *MailService) Close() error {
	return s.pool.Close()
}
