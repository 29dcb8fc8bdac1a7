package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ObiAU/mentionwatch/internal/models"
)

// StatsProvider contributes a named section to the /stats endpoint.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Aggregator is the poll loop: each cycle asks every source for new messages
// and hands a non-empty result to every sink, then sleeps a fixed interval.
type Aggregator struct {
	interval   time.Duration
	serverPort string
	sources    []models.Source
	sinks      []models.NotificationSink
	stats      map[string]StatsProvider
	logger     zerolog.Logger
	sdNotify   func(state string) (bool, error)
	server     *http.Server

	mu            sync.RWMutex
	running       bool
	cycles        int
	notifications int
	lastCycleAt   time.Time
}

type Option func(*Aggregator)

// WithServerPort enables the health/stats HTTP server.
func WithServerPort(port string) Option {
	return func(a *Aggregator) { a.serverPort = port }
}

// WithStats registers a section of the /stats response.
func WithStats(name string, p StatsProvider) Option {
	return func(a *Aggregator) { a.stats[name] = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithSystemdNotifier replaces the sd_notify call (for testing).
func WithSystemdNotifier(fn func(state string) (bool, error)) Option {
	return func(a *Aggregator) { a.sdNotify = fn }
}

func New(interval time.Duration, sources []models.Source, sinks []models.NotificationSink, opts ...Option) *Aggregator {
	a := &Aggregator{
		interval: interval,
		sources:  sources,
		sinks:    sinks,
		stats:    make(map[string]StatsProvider),
		logger:   zerolog.Nop(),
		sdNotify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
func (a *Aggregator) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.serverPort != "" {
		if err := a.startHTTPServer(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	a.notifySystemd(daemon.SdNotifyReady)
	a.processLoop(ctx)

	return a.shutdown()
}

func (a *Aggregator) processLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			a.RunCycle(ctx)
			a.notifySystemd(daemon.SdNotifyWatchdog)
			timer.Reset(a.interval)
		}
	}
}

// RunCycle performs one poll over every source. Sinks are only called after
// all sources have been parsed, and only when something new was found.
func (a *Aggregator) RunCycle(ctx context.Context) models.AccountMessages {
	log := a.logger.With().Str("cycle", uuid.NewString()).Logger()
	started := time.Now()

	merged := models.AccountMessages{}
	for _, source := range a.sources {
		for account, bucket := range source.Parse(ctx) {
			if existing, ok := merged[account]; ok {
				for name, text := range bucket {
					if _, taken := existing[name]; !taken {
						existing[name] = text
					}
				}
				continue
			}
			merged[account] = bucket
		}
	}

	if len(merged) > 0 && ctx.Err() == nil {
		for _, sink := range a.sinks {
			sink.Notify(ctx, merged)
		}
	}

	a.mu.Lock()
	a.cycles++
	a.lastCycleAt = started
	if len(merged) > 0 {
		a.notifications++
	}
	a.mu.Unlock()

	log.Debug().
		Int("accounts_with_messages", len(merged)).
		Dur("duration", time.Since(started)).
		Msg("poll cycle completed")

	return merged
}

func (a *Aggregator) notifySystemd(state string) {
	if _, err := a.sdNotify(state); err != nil {
		a.logger.Warn().Err(err).Str("state", state).Msg("systemd notify failed")
	}
}

func (a *Aggregator) startHTTPServer() error {
	a.server = &http.Server{
		Addr:              ":" + a.serverPort,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	a.logger.Info().Str("addr", a.server.Addr).Msg("HTTP server listening")
	return nil
}

func (a *Aggregator) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", a.healthHandler)
	r.Get("/stats", a.statsHandler)
	return r
}

func (a *Aggregator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *Aggregator) statsHandler(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	resp := map[string]interface{}{
		"running":       a.running,
		"cycles":        a.cycles,
		"notifications": a.notifications,
	}
	if !a.lastCycleAt.IsZero() {
		resp["last_cycle_at"] = a.lastCycleAt.UTC().Format(time.RFC3339)
	}
	a.mu.RUnlock()

	for name, p := range a.stats {
		resp[name] = p.Stats()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func (a *Aggregator) shutdown() error {
	a.logger.Info().Msg("shutting down poll loop")
	a.notifySystemd(daemon.SdNotifyStopping)

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	return nil
}

// Cycles returns how many poll cycles have completed.
func (a *Aggregator) Cycles() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cycles
}
