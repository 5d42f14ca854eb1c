// Package status tracks the lifecycle of ingestion runs. Every write goes
// to durable object storage so a caller on another instance can poll it;
// an in-memory map sits in front as a write-through cache.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/objectstore"
)

// ErrNotFound indicates no status exists for the requested processing ID.
var ErrNotFound = errors.New("status: not found")

// State is the lifecycle phase of one ingestion run.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// RetentionTTL is how long terminal statuses remain pollable before the
// sweeper removes them.
const RetentionTTL = 10 * time.Minute

// SweepInterval is how often the background sweeper scans for expired
// terminal statuses.
const SweepInterval = time.Minute

// Status is the durable record for one ingestion run.
type Status struct {
	ID              string     `json:"id"`
	State           State      `json:"state"`
	ProgressPercent int        `json:"progressPercent"`
	Message         string     `json:"message"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// Tracker owns all status transitions. Each processing ID is written by a
// single ingestion run, so a concurrent map suffices for the cache.
type Tracker struct {
	store  objectstore.Store
	logger log.Logger
	now    func() time.Time

	cache sync.Map // processingID -> Status
}

// NewTracker creates a tracker backed by the given object store.
func NewTracker(store objectstore.Store, logger log.Logger) *Tracker {
	return &Tracker{store: store, logger: logger, now: time.Now}
}

func statusKey(id string) string {
	return "status/" + id + ".json"
}

// Start records a new run in the processing state.
func (t *Tracker) Start(ctx context.Context, id string) error {
	st := Status{
		ID:        id,
		State:     StateProcessing,
		Message:   "processing started",
		CreatedAt: t.now().UTC(),
	}
	return t.write(ctx, st)
}

// Progress advances the run's progress. Progress never moves backwards;
// a lower value than the current one is ignored.
func (t *Tracker) Progress(ctx context.Context, id string, percent int, message string) error {
	st, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if st.Terminal() {
		return fmt.Errorf("status: run %s already %s", id, st.State)
	}
	if percent < st.ProgressPercent {
		percent = st.ProgressPercent
	}
	st.ProgressPercent = percent
	st.Message = message
	return t.write(ctx, st)
}

// Complete marks the run as successfully finished.
func (t *Tracker) Complete(ctx context.Context, id, message string) error {
	return t.finish(ctx, id, StateCompleted, message, "")
}

// Fail marks the run as failed with the given error message.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := "processing failed"
	errText := "unknown error"
	if cause != nil {
		errText = cause.Error()
	}
	return t.finish(ctx, id, StateFailed, msg, errText)
}

func (t *Tracker) finish(ctx context.Context, id string, state State, message, errText string) error {
	st, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if st.Terminal() {
		return fmt.Errorf("status: run %s already %s", id, st.State)
	}

	now := t.now().UTC()
	st.State = state
	st.Message = message
	st.Error = errText
	st.CompletedAt = &now
	if state == StateCompleted {
		st.ProgressPercent = 100
	}
	return t.write(ctx, st)
}

// Get returns the status for a run, consulting the cache first and
// falling back to durable storage.
func (t *Tracker) Get(ctx context.Context, id string) (Status, error) {
	if cached, ok := t.cache.Load(id); ok {
		return cached.(Status), nil
	}

	data, err := t.store.Get(ctx, statusKey(id))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Status{}, fmt.Errorf("loading status %s: %w", id, err)
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("decoding status %s: %w", id, err)
	}
	t.cache.Store(id, st)
	return st, nil
}

func (t *Tracker) write(ctx context.Context, st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling status %s: %w", st.ID, err)
	}
	if err := t.store.Put(ctx, statusKey(st.ID), data); err != nil {
		return fmt.Errorf("persisting status %s: %w", st.ID, err)
	}
	t.cache.Store(st.ID, st)
	return nil
}

// RunSweeper periodically removes terminal statuses older than
// RetentionTTL from both the cache and durable storage. It blocks until
// the context is cancelled.
func (t *Tracker) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *Tracker) sweep(ctx context.Context) {
	keys, err := t.store.List(ctx, "status/")
	if err != nil {
		t.logger.Warn("status sweep listing failed", "error", err)
		return
	}

	cutoff := t.now().UTC().Add(-RetentionTTL)
	removed := 0
	for _, key := range keys {
		data, err := t.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var st Status
		if err := json.Unmarshal(data, &st); err != nil {
			t.logger.Warn("removing undecodable status record", "key", key, "error", err)
			_ = t.store.Delete(ctx, key)
			continue
		}
		if !st.Terminal() || st.CompletedAt == nil || st.CompletedAt.After(cutoff) {
			continue
		}
		if err := t.store.Delete(ctx, key); err != nil {
			t.logger.Warn("status sweep delete failed", "key", key, "error", err)
			continue
		}
		t.cache.Delete(st.ID)
		removed++
	}

	if removed > 0 {
		t.logger.Debug("status sweep removed expired records", "count", removed)
	}
}
