package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/docstore"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// ReconcileProcessorConfig holds configuration for the reconcile sweep
type ReconcileProcessorConfig struct {
	// PollInterval is how often a sweep runs (default: 15m)
	PollInterval time.Duration

	// BatchSize is the max number of user scopes checked per sweep (default: 50).
	// Larger sets are covered round-robin across sweeps.
	BatchSize int
}

func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		PollInterval: 15 * time.Minute,
		BatchSize:    50,
	}
}

// ProcessorStats counts sweep activity since Start.
type ProcessorStats struct {
	Sweeps        int64
	ScopesChecked int64
	Drifted       int64
	Failures      int64
}

// ReconcileProcessor periodically re-derives every account balance of the
// known user scopes and logs drift.
type ReconcileProcessor struct {
	store  docstore.Store
	scopes *ScopeSet
	config ReconcileProcessorConfig

	cursor int

	sweeps, checked, drifted, failures atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(store docstore.Store, scopes *ScopeSet, config ReconcileProcessorConfig) *ReconcileProcessor {
	def := DefaultReconcileProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if scopes == nil {
		scopes = NewScopeSet()
	}
	return &ReconcileProcessor{
		store:  store,
		scopes: scopes,
		config: config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		Sweeps:        p.sweeps.Load(),
		ScopesChecked: p.checked.Load(),
		Drifted:       p.drifted.Load(),
		Failures:      p.failures.Load(),
	}
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep checks up to BatchSize scopes, continuing where the previous sweep
// stopped.
func (p *ReconcileProcessor) sweep(ctx context.Context) {
	p.sweeps.Add(1)
	all := p.scopes.List()
	if len(all) == 0 {
		return
	}
	n := min(p.config.BatchSize, len(all))
	start := p.cursor % len(all)
	p.cursor = start + n

	slog.DebugContext(ctx, "Reconcile sweep", "scopes", n, "known", len(all))

	for i := 0; i < n; i++ {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		p.checkScope(ctx, all[(start+i)%len(all)])
	}
}

func (p *ReconcileProcessor) checkScope(ctx context.Context, scope docstore.Scope) {
	drifts, err := services.New(services.Deps{Store: p.store}, scope).Reconciler.CheckAll(ctx)
	p.checked.Add(1)
	if err != nil {
		p.failures.Add(1)
		slog.ErrorContext(ctx, "Reconcile sweep failed for user",
			log.FieldOperation, log.OpReconcile,
			log.FieldUserID, scope.UserID,
			log.FieldError, err)
		return
	}
	for _, d := range drifts {
		if !d.Balanced() {
			p.drifted.Add(1)
		}
	}
}
