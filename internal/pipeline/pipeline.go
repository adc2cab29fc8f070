package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"confsentry/internal/backend"
)

// CriteriaCache is the cache surface the pipeline consumes. The concrete
// implementation lives in internal/cache; a nil cache disables both
// lookup and store.
type CriteriaCache interface {
	Lookup(ctx context.Context, vendor, osType, role string) (CriteriaSet, bool, error)
	Put(ctx context.Context, vendor, osType, role string, checks CriteriaSet) error
}

// Pipeline sequences the three stages over one backend. The struct itself
// carries no run state, so a single Pipeline may serve many concurrent
// runs; the cache is the only shared mutable resource and serializes its
// own access.
type Pipeline struct {
	gen       backend.Generator
	cache     CriteriaCache
	retry     RetryPolicy
	maxTokens int
	log       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache attaches a criteria cache. Without it every run generates
// criteria fresh.
func WithCache(c CriteriaCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(r RetryPolicy) Option {
	return func(p *Pipeline) { p.retry = r }
}

// WithMaxTokens caps the completion length requested per backend call.
func WithMaxTokens(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Pipeline over the given backend.
func New(gen backend.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:       gen,
		retry:     DefaultRetryPolicy(),
		maxTokens: 4096,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the full pipeline over one configuration text. Transitions
// run strictly forward; there is no partial restart — every run begins at
// stage 1. On failure the returned PipelineResult carries every completed
// stage's output alongside the error, so diagnostics never lose work the
// run already paid for.
func (p *Pipeline) Run(ctx context.Context, configText string) (*PipelineResult, error) {
	res := &PipelineResult{
		RunID:     uuid.NewString(),
		State:     StateStage1,
		StartedAt: time.Now().UTC(),
	}
	log := p.log.With(zap.String("run_id", res.RunID))
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	log.Info("pipeline run started")

	asset, err := p.runStage1(ctx, configText)
	if err != nil {
		return p.fail(log, res, err)
	}
	res.Asset = asset
	res.State = StateStage2

	checks, fromCache, err := p.runStage2(ctx, asset)
	if err != nil {
		return p.fail(log, res, err)
	}
	res.Checks = checks
	res.FromCache = fromCache
	res.State = StateStage3

	results, summary, err := p.runStage3(ctx, configText, asset, checks)
	if err != nil {
		return p.fail(log, res, err)
	}
	res.Results = results
	res.Summary = summary
	res.State = StateAssembled

	log.Info("pipeline run assembled",
		zap.Duration("elapsed", time.Since(res.StartedAt)),
		zap.Bool("criteria_from_cache", fromCache),
		zap.Float64("compliance_score", summary.ComplianceScore))
	return res, nil
}

// fail moves the run to StateFailed and hands back the partial result
// with the error.
func (p *Pipeline) fail(log *zap.Logger, res *PipelineResult, err error) (*PipelineResult, error) {
	res.State = StateFailed
	log.Error("pipeline run failed", zap.Error(err))
	return res, err
}
