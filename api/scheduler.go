/*
scheduler.go - Idle session eviction

PURPOSE:
  Editor sessions live in memory between requests. SessionJanitor
  periodically drops the ones nobody has touched for TTL so abandoned
  edits do not pin memory forever.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips sessions that are serving a request at the moment
  - Logs every eviction that throws away pending changes

USAGE:
  janitor := NewSessionJanitor(handler.Sessions, 30*time.Minute, logger)
  janitor.Start()
  // ... later
  janitor.Stop()

SEE ALSO:
  - sessions.go: Sessions.Evict
*/
package api

import (
	"log/slog"
	"sync"
	"time"
)

// SessionJanitor evicts idle editor sessions.
type SessionJanitor struct {
	Sessions      *Sessions
	TTL           time.Duration
	CheckInterval time.Duration
	Enabled       bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionJanitor creates a janitor checking every TTL/4, at least once
// a minute.
func NewSessionJanitor(sessions *Sessions, ttl time.Duration, logger *slog.Logger) *SessionJanitor {
	interval := ttl / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	return &SessionJanitor{
		Sessions:      sessions,
		TTL:           ttl,
		CheckInterval: interval,
		Enabled:       ttl > 0,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Start begins the janitor.
func (j *SessionJanitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.Enabled {
		j.logger.Info("session janitor disabled")
		return
	}
	if j.ticker != nil {
		return
	}

	j.ticker = time.NewTicker(j.CheckInterval)
	j.wg.Add(1)
	go j.run()

	j.logger.Info("session janitor started",
		slog.Duration("ttl", j.TTL),
		slog.Duration("interval", j.CheckInterval),
	)
}

// Stop stops the janitor and waits for the running sweep.
func (j *SessionJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		j.ticker.Stop()
		close(j.stop)
		j.wg.Wait()
		j.ticker = nil
		j.logger.Info("session janitor stopped")
	}
}

func (j *SessionJanitor) run() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ticker.C:
			j.RunNow()
		case <-j.stop:
			return
		}
	}
}

// RunNow sweeps once and returns how many sessions were evicted.
func (j *SessionJanitor) RunNow() int {
	n := j.Sessions.Evict(j.TTL)
	if n > 0 {
		j.logger.Debug("evicted idle sessions", slog.Int("count", n), slog.Int("open", j.Sessions.Len()))
	}
	return n
}
