package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Maintenance periodically removes orphaned blobs and expired reset tokens.
type Maintenance struct {
	attachments *AttachmentService
	resets      *ResetTokenStore
	interval    time.Duration
	once        sync.Once
	done        chan struct{}
}

func NewMaintenance(attachments *AttachmentService, resets *ResetTokenStore, interval time.Duration) *Maintenance {
	return &Maintenance{
		attachments: attachments,
		resets:      resets,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

// Start launches the loop once. A non-positive interval disables it. Done is
// closed when the loop exits.
func (m *Maintenance) Start(ctx context.Context) {
	m.once.Do(func() {
		if m.interval <= 0 {
			close(m.done)
			return
		}
		go m.loop(ctx)
	})
}

// Done is closed once the loop has stopped.
func (m *Maintenance) Done() <-chan struct{} {
	return m.done
}

func (m *Maintenance) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (m *Maintenance) RunOnce(ctx context.Context) {
	if m.attachments != nil {
		n, err := m.attachments.SweepOrphans(ctx)
		if err != nil {
			slog.WarnContext(ctx, "orphan sweep failed", slog.String("error", err.Error()))
		} else if n > 0 {
			slog.InfoContext(ctx, "orphan sweep removed blobs", slog.Int("count", n))
		}
	}
	if m.resets != nil {
		n, err := m.resets.Prune(ctx)
		if err != nil {
			slog.WarnContext(ctx, "reset token prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			slog.InfoContext(ctx, "expired reset tokens pruned", slog.Int64("count", n))
		}
	}
}
