// Package audit provides the best-effort operation trail. Every data
// operation attempt produces one entry; recording is an asynchronous
// side-channel that is structurally incapable of affecting the operation's
// own result.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/repositories"
)

// writeTimeout bounds each store write so a slow engine DB cannot back the
// worker up indefinitely.
const writeTimeout = 5 * time.Second

// Trail records audit entries through a bounded channel consumed by a
// background worker. Record never blocks: when the buffer is full the entry
// is dropped with a warning.
type Trail struct {
	repo   repositories.AuditRepository
	logger *zap.Logger

	entries    chan *models.AuditLogEntry
	wg         sync.WaitGroup
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewTrail creates and starts an audit trail with the given buffer size.
func NewTrail(repo repositories.AuditRepository, bufferSize int, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	t := &Trail{
		repo:       repo,
		logger:     logger.Named("audit"),
		entries:    make(chan *models.AuditLogEntry, bufferSize),
		shutdownCh: make(chan struct{}),
	}

	t.wg.Add(1)
	go t.worker()
	return t
}

// Record enqueues an entry without blocking.
func (t *Trail) Record(entry *models.AuditLogEntry) {
	select {
	case t.entries <- entry:
	case <-t.shutdownCh:
		t.logger.Warn("Audit entry discarded after shutdown",
			zap.String("user_id", entry.UserID),
			zap.String("action", entry.Action))
	default:
		t.logger.Warn("Audit buffer full, entry dropped",
			zap.String("user_id", entry.UserID),
			zap.String("provider", string(entry.Provider)),
			zap.String("action", entry.Action))
	}
}

// Close stops the worker after draining buffered entries.
func (t *Trail) Close() {
	t.closeOnce.Do(func() {
		close(t.shutdownCh)
		t.wg.Wait()
	})
}

func (t *Trail) worker() {
	defer t.wg.Done()

	for {
		select {
		case entry := <-t.entries:
			t.write(entry)
		case <-t.shutdownCh:
			for {
				select {
				case entry := <-t.entries:
					t.write(entry)
				default:
					return
				}
			}
		}
	}
}

// write persists one entry. Failures are logged and swallowed.
func (t *Trail) write(entry *models.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := t.repo.Create(ctx, entry); err != nil {
		t.logger.Warn("Failed to persist audit entry",
			zap.String("user_id", entry.UserID),
			zap.String("provider", string(entry.Provider)),
			zap.String("action", entry.Action),
			zap.String("status", entry.Status),
			zap.Error(err))
	}
}
