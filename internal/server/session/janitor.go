package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Janitor periodically removes expired refresh sessions
type Janitor struct {
	service  *Service
	logger   *slog.Logger
	stopC    chan struct{}
	done     chan struct{}
	interval time.Duration
	once     sync.Once
	started  atomic.Bool
}

// NewJanitor creates a janitor; call Start to run it
func NewJanitor(service *Service, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		service:  service,
		logger:   logger,
		interval: interval,
		stopC:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the cleanup loop in a goroutine until ctx is done or Stop is called
func (j *Janitor) Start(ctx context.Context) {
	if j.started.Swap(true) {
		return
	}
	go j.run(ctx)
}

// Stop terminates the loop and waits for it to exit
func (j *Janitor) Stop() {
	j.once.Do(func() {
		close(j.stopC)
	})
	if j.started.Load() {
		<-j.done
	}
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopC:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.service.Cleanup(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to clean up expired sessions", slog.Any("error", err))
		return
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "Expired sessions removed", slog.Int("count", n))
	}
}
