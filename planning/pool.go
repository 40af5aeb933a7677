package planning

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/schema"
)

// PoolOptions configures a proposal Pool.
type PoolOptions struct {
	// Validator checks every candidate; defaults to schema.New().
	Validator *schema.Validator
	Logger    logging.Logger
}

// Pool collects validated design plans from several proposers.
type Pool struct {
	opts PoolOptions
}

// NewPool creates a proposal pool.
func NewPool(optFns ...func(o *PoolOptions)) *Pool {
	opts := PoolOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Validator == nil {
		opts.Validator = schema.New()
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Pool{opts: opts}
}

// Collect runs every proposer concurrently. Each proposer gets up to
// retries+1 attempts and contributes its first candidate that passes both
// validation tiers. Survivors are returned in proposer order; an empty
// survivor set fails with core.ErrNoViableProposal.
func (p *Pool) Collect(ctx context.Context, question string, proposers []Proposer, retries int) ([]*core.DesignPlan, error) {
	if retries < 0 {
		retries = 0
	}

	results := make([]*core.DesignPlan, len(proposers))
	lastErrs := make([]error, len(proposers))

	var g errgroup.Group

	for i, proposer := range proposers {
		g.Go(func() error {
			results[i], lastErrs[i] = p.propose(ctx, question, proposer, retries+1)
			return nil
		})
	}

	_ = g.Wait()

	var plans []*core.DesignPlan

	for _, plan := range results {
		if plan != nil {
			plans = append(plans, plan)
		}
	}

	if len(plans) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrNoViableProposal, err)
		}

		return nil, fmt.Errorf("%w: %d proposers failed", core.ErrNoViableProposal, len(proposers))
	}

	p.opts.Logger.Info("Proposals collected", "viable", len(plans), "proposers", len(proposers))

	return plans, nil
}

func (p *Pool) propose(ctx context.Context, question string, proposer Proposer, attempts int) (*core.DesignPlan, error) {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()

		plan, err := proposer.Propose(ctx, question)
		if err == nil {
			err = p.validate(plan)
		}

		if err == nil {
			p.opts.Logger.Info("Proposal accepted",
				"proposer", proposer.Name(), "attempt", attempt, "files", len(plan.FileSpecs),
				"duration_ms", time.Since(start).Milliseconds())

			return plan, nil
		}

		lastErr = err
		p.opts.Logger.Warn("Proposal rejected",
			"proposer", proposer.Name(), "attempt", attempt, "of", attempts, "error", err.Error())
	}

	return nil, lastErr
}

func (p *Pool) validate(plan *core.DesignPlan) error {
	if plan == nil {
		return &core.SchemaError{Kind: core.SchemaDesignPlan, Tier: core.TierStructural, Issues: []string{"empty proposal"}}
	}

	if plan.ID == "" {
		plan.ID = core.NewID()
	}

	payload, err := core.ToPayload(plan)
	if err != nil {
		return &core.SchemaError{Kind: core.SchemaDesignPlan, Tier: core.TierStructural, Issues: []string{err.Error()}}
	}

	return p.opts.Validator.Validate(payload, core.SchemaDesignPlan)
}
