package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"diapredict/artifact"
	"diapredict/logging"
	"diapredict/ml"
)

// ErrModelUnavailable reports that no artifact bundle is currently servable.
// It wraps the underlying cause, so errors.Is also matches the artifact
// sentinel that produced it.
var ErrModelUnavailable = errors.New("model unavailable")

// State is the engine lifecycle: no bundle touched yet, a bundle serving, or
// the last load attempt failed with nothing older to fall back on.
type State int32

const (
	StateUnloaded State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Prediction is one scored observation.
type Prediction struct {
	Outcome              int     `json:"outcome"`
	Probability          float64 `json:"probability"`
	ConfidencePercentage int     `json:"confidence_percentage"`
	Variant              string  `json:"variant"`
	RunID                string  `json:"run_id"`
	Cached               bool    `json:"-"`
}

// Status describes the engine for the model info endpoint.
type Status struct {
	State     string              `json:"state"`
	Variant   string              `json:"variant,omitempty"`
	RunID     string              `json:"run_id,omitempty"`
	CreatedAt time.Time           `json:"created_at,omitempty"`
	Metrics   ml.Metrics          `json:"metrics"`
	Scores    []ml.CandidateScore `json:"scores,omitempty"`
	TotalRows int                 `json:"total_rows,omitempty"`
	TrainRows int                 `json:"train_rows,omitempty"`
	TestRows  int                 `json:"test_rows,omitempty"`
}

// snapshot is one loaded bundle generation. Immutable once published, shared
// lock-free between request goroutines.
type snapshot struct {
	bundle  *artifact.Bundle
	model   ml.Classifier
	modTime time.Time
}

type loadFailure struct {
	err error
	at  time.Time
}

// Options tunes the engine. Zero values get sensible defaults.
type Options struct {
	// TTL bounds how stale a loaded bundle may get before the engine
	// re-stats the artifact file. Zero disables the periodic check.
	TTL time.Duration
	// CacheSize is the number of memoized predictions kept per bundle.
	CacheSize int
}

const defaultCacheSize = 1024

// Engine serves predictions from the most recently published artifact
// bundle. Loading is lazy: the first caller pays for the load, concurrent
// callers share one load via the mutex, and successful loads publish a new
// immutable snapshot through an atomic pointer.
type Engine struct {
	store *artifact.Store
	ttl   time.Duration

	mu        sync.Mutex
	current   atomic.Pointer[snapshot]
	failed    atomic.Pointer[loadFailure]
	dirty     atomic.Bool
	lastCheck atomic.Int64

	memo *lru.Cache[string, Prediction]

	watchOnce sync.Once
	watchErr  error
}

func NewEngine(store *artifact.Store, opts Options) *Engine {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	// lru.New only fails on a non-positive size, which is excluded above.
	memo, _ := lru.New[string, Prediction](size)
	return &Engine{
		store: store,
		ttl:   opts.TTL,
		memo:  memo,
	}
}

// State reports the current lifecycle state without side effects.
func (e *Engine) State() State {
	if e.current.Load() != nil {
		return StateLoaded
	}
	if e.failed.Load() != nil {
		return StateFailed
	}
	return StateUnloaded
}

// Invalidate tells the engine the published artifact may have changed. The
// next request reloads, clearing a failed latch if one is set.
func (e *Engine) Invalidate() {
	e.dirty.Store(true)
}

// Predict scores one observation against the active bundle. Identical raw
// vectors are memoized per bundle generation, so a repeat costs a cache
// lookup instead of a model walk.
func (e *Engine) Predict(ctx context.Context, features ml.Features) (Prediction, error) {
	if err := features.Validate(); err != nil {
		return Prediction{}, err
	}

	snap, err := e.ensure(ctx)
	if err != nil {
		return Prediction{}, err
	}

	raw := features.Vector()
	key := memoKey(raw)
	if hit, ok := e.memo.Get(key); ok {
		hit.Cached = true
		return hit, nil
	}

	scaled, err := snap.bundle.Scaler.Transform(raw)
	if err != nil {
		return Prediction{}, err
	}
	proba, err := snap.model.PredictProba(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}

	prediction := Prediction{
		Outcome:              ml.Label(proba),
		Probability:          proba,
		ConfidencePercentage: int(math.Round(proba * 100)),
		Variant:              snap.bundle.Selected,
		RunID:                snap.bundle.RunID,
	}
	e.memo.Add(key, prediction)
	return prediction, nil
}

// Warmup loads the artifact eagerly so availability is known at startup
// instead of on the first request. The engine keeps working either way; a
// missing bundle simply leaves it unavailable until one is published.
func (e *Engine) Warmup(ctx context.Context) error {
	_, err := e.ensure(ctx)
	return err
}

// Describe returns bundle metadata for the model info endpoint, loading
// lazily like Predict does.
func (e *Engine) Describe(ctx context.Context) (Status, error) {
	snap, err := e.ensure(ctx)
	if err != nil {
		return Status{State: e.State().String()}, err
	}
	return Status{
		State:     StateLoaded.String(),
		Variant:   snap.bundle.Selected,
		RunID:     snap.bundle.RunID,
		CreatedAt: snap.bundle.CreatedAt,
		Metrics:   snap.bundle.Metrics(),
		Scores:    snap.bundle.Scores,
		TotalRows: snap.bundle.TotalRows,
		TrainRows: snap.bundle.TrainRows,
		TestRows:  snap.bundle.TestRows,
	}, nil
}

// ensure returns a servable snapshot, loading or reloading as needed.
func (e *Engine) ensure(ctx context.Context) (*snapshot, error) {
	if e.dirty.Load() {
		return e.reload(ctx, true)
	}

	snap := e.current.Load()
	if snap == nil {
		if f := e.failed.Load(); f != nil {
			// Failed latch: fail fast until something signals a new artifact.
			return nil, f.err
		}
		return e.reload(ctx, false)
	}

	if e.ttl > 0 {
		now := time.Now().UnixNano()
		last := e.lastCheck.Load()
		if now-last > int64(e.ttl) && e.lastCheck.CompareAndSwap(last, now) {
			modTime, err := e.store.Stat()
			switch {
			case err != nil:
				// A vanished file does not unload a working model.
				logging.FromContext(ctx).Debugf("artifact stat failed, keeping loaded bundle: %v", err)
			case modTime.After(snap.modTime):
				return e.reload(ctx, true)
			}
		}
	}
	return snap, nil
}

// reload loads the bundle from disk under the engine mutex. Exactly one
// goroutine does the work; the rest observe its published result.
func (e *Engine) reload(ctx context.Context, force bool) (*snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A concurrent caller may have finished the load while we waited.
	if !force && !e.dirty.Load() {
		if snap := e.current.Load(); snap != nil {
			return snap, nil
		}
		if f := e.failed.Load(); f != nil {
			return nil, f.err
		}
	}
	e.dirty.Store(false)

	logger := logging.FromContext(ctx)
	prev := e.current.Load()

	bundle, err := e.store.Load()
	if err != nil {
		if prev != nil {
			// Keep serving the previous generation; a broken publish must
			// not take down serving.
			logger.Warnf("artifact reload failed, keeping run %s: %v", prev.bundle.RunID, err)
			return prev, nil
		}
		wrapped := fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		e.failed.Store(&loadFailure{err: wrapped, at: time.Now()})
		logger.Warnf("artifact load failed: %v", err)
		return nil, wrapped
	}

	model, err := bundle.Model()
	if err != nil {
		if prev != nil {
			logger.Warnf("artifact reload failed, keeping run %s: %v", prev.bundle.RunID, err)
			return prev, nil
		}
		wrapped := fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		e.failed.Store(&loadFailure{err: wrapped, at: time.Now()})
		return nil, wrapped
	}

	modTime, statErr := e.store.Stat()
	if statErr != nil {
		modTime = time.Now()
	}

	snap := &snapshot{bundle: bundle, model: model, modTime: modTime}
	e.current.Store(snap)
	e.failed.Store(nil)
	e.memo.Purge()
	e.lastCheck.Store(time.Now().UnixNano())

	if prev == nil || prev.bundle.RunID != bundle.RunID {
		logger.Infof("serving model %s from run %s (accuracy %.4f)",
			bundle.Selected, bundle.RunID, bundle.Metrics().Accuracy)
	}
	return snap, nil
}

// memoKey renders the raw vector bit-exactly, so only identical float inputs
// share a cache entry.
func memoKey(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'b', -1, 64)
	}
	return strings.Join(parts, "|")
}
