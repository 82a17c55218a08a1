package harvester

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"benevault/core/events"
	"benevault/observability"
	"benevault/services/harvestd/checkpoint"
)

// NodeClient is the slice of the RPC client the loop depends on.
type NodeClient interface {
	Harvest(ctx context.Context) (*big.Int, error)
	Events(ctx context.Context, fromSequence uint64, limit int) ([]EventUpdate, error)
}

// Manager drives periodic fee harvests against the vault node.
type Manager struct {
	logger    *slog.Logger
	client    NodeClient
	store     *checkpoint.Store
	interval  time.Duration
	eventPage int
	metrics   *observability.HarvestdMetrics
	now       func() time.Time
	newJobID  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a manager instance.
func New(client NodeClient, store *checkpoint.Store, interval time.Duration, eventPage int, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("node client required")
	}
	if store == nil {
		return nil, fmt.Errorf("checkpoint store required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if eventPage <= 0 {
		eventPage = 100
	}
	mgr := &Manager{
		logger:    slog.Default(),
		client:    client,
		store:     store,
		interval:  interval,
		eventPage: eventPage,
		metrics:   observability.Harvestd(),
		now:       time.Now,
		newJobID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, harvesting on the configured cadence until the context is
// cancelled. A checkpoint from a previous process shortens the first wait so
// restarts do not double-harvest inside one interval.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	delay := m.initialDelay()
	if delay > 0 {
		m.logger.Info("resuming harvest schedule", "delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("harvest cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) initialDelay() time.Duration {
	cp, ok, err := m.store.Load()
	if err != nil {
		m.logger.Error("load checkpoint", "error", err)
		return 0
	}
	if !ok || cp.LastRun.IsZero() {
		return 0
	}
	elapsed := m.now().Sub(cp.LastRun)
	if elapsed >= m.interval {
		return 0
	}
	return m.interval - elapsed
}

// Tick performs a single harvest job: trigger the harvest, drain the event
// feed past the stored cursor, and persist the new checkpoint.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	cp, _, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	jobID := m.newJobID()
	started := m.now()
	logger := m.logger.With("job_id", jobID)

	harvested, err := m.client.Harvest(ctx)
	if err != nil {
		if Skippable(err) {
			logger.Info("harvest skipped", "reason", err.Error())
			cp.LastRun = started
			cp.LastJobID = jobID
			cp.Runs++
			if saveErr := m.store.Save(cp); saveErr != nil {
				return fmt.Errorf("save checkpoint: %w", saveErr)
			}
			m.metrics.ObserveRun(started, nil)
			return nil
		}
		cp.LastRun = started
		cp.LastJobID = jobID
		cp.Runs++
		cp.Failures++
		if saveErr := m.store.Save(cp); saveErr != nil {
			logger.Error("save checkpoint", "error", saveErr)
		}
		m.metrics.ObserveRun(started, err)
		return fmt.Errorf("harvest: %w", err)
	}

	cursor, feeEvents, err := m.drainEvents(ctx, cp.EventCursor)
	if err != nil {
		logger.Error("drain events", "error", err, "cursor", cp.EventCursor)
	} else {
		cp.EventCursor = cursor
	}

	cp.LastRun = started
	cp.LastJobID = jobID
	cp.LastHarvested = harvested.String()
	cp.Runs++
	if err := m.store.Save(cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	m.metrics.ObserveRun(started, nil)
	logger.Info("harvest completed",
		"harvested", harvested.String(),
		"fee_events", feeEvents,
		"cursor", cp.EventCursor,
		"duration", m.now().Sub(started).String(),
	)
	return nil
}

// drainEvents pages the feed past the cursor and counts the fee recordings it
// sees, returning the highest sequence reached.
func (m *Manager) drainEvents(ctx context.Context, cursor uint64) (uint64, int, error) {
	feeEvents := 0
	for {
		updates, err := m.client.Events(ctx, cursor, m.eventPage)
		if err != nil {
			return cursor, feeEvents, err
		}
		if len(updates) == 0 {
			return cursor, feeEvents, nil
		}
		for _, update := range updates {
			if update.Sequence > cursor {
				cursor = update.Sequence
			}
			if update.Event != nil && update.Event.Type == events.TypeFeesRecorded {
				feeEvents++
			}
		}
		if len(updates) < m.eventPage {
			return cursor, feeEvents, nil
		}
	}
}
