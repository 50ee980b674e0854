// Package sim runs a self-contained synthetic tournament: random-walk
// market data, profiled forecasters ranging from sharp to degenerate,
// and a full pass through every elimination phase. Used by the simulate
// command and as an end-to-end smoke of the engine.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/okian/gauntlet/internal/adapters/resolver"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/config"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/phases"
	"github.com/okian/gauntlet/pkg/logger"
)

// Phase schedule: each entry is the round after which one phase step
// runs. The tail phases run once more after the final round.
var phaseRounds = []int{6, 9, 12} //nolint:gochecknoglobals // fixed schedule

// Result is what one simulation run produced.
type Result struct {
	RunID     string
	Rounds    int
	Standings []phases.RankedModel
	Extension int
}

// Runner drives one simulated tournament.
type Runner struct {
	cfg      Config
	horizons []model.Horizon
	logger   logger.Logger
}

// NewRunner creates a simulation runner over the default horizon set.
func NewRunner(cfg Config) (*Runner, error) {
	horizons, err := config.New().ModelHorizons()
	if err != nil {
		return nil, err
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = defaultRounds
	}
	return &Runner{
		cfg:      cfg,
		horizons: horizons,
		logger:   logger.Get().Named("sim"),
	}, nil
}

// Run plays the whole tournament and returns the final standings.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	rng := rand.New(rand.NewSource(r.cfg.Seed)) //nolint:gosec // deterministic simulation

	feed := resolver.NewStaticFeed()
	res := resolver.NewReplay(feed, resolver.WithLogger(r.logger.Named("resolver")))
	truth, err := r.seedMarket(ctx, rng, feed, res)
	if err != nil {
		return Result{}, err
	}

	forecasters := buildForecasters(r.cfg, func(round int, h model.HorizonID) bool {
		return truth[truthKey(round, h)]
	})
	modelIDs := make([]string, 0, len(forecasters))
	for _, f := range forecasters {
		modelIDs = append(modelIDs, f.ModelID())
	}
	sort.Strings(modelIDs)

	svc := service.New(
		service.WithModels(modelIDs),
		service.WithHorizons(r.horizons),
		service.WithForecasters(forecasters),
		service.WithResolver(res),
		service.WithPlannedRounds(r.cfg.Rounds),
		service.WithLogger(r.logger.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		return Result{}, err
	}
	defer svc.Stop()

	for round := 1; round <= r.cfg.Rounds; round++ {
		if _, err := svc.Step(ctx); err != nil {
			return Result{}, fmt.Errorf("round %d: %w", round, err)
		}
		for _, at := range phaseRounds {
			if round == at {
				if _, err := svc.RunPhase(ctx); err != nil {
					return Result{}, fmt.Errorf("phase after round %d: %w", round, err)
				}
			}
		}
	}

	// Terminal ranking pass.
	if _, err := svc.RunPhase(ctx); err != nil {
		return Result{}, err
	}

	standings, err := svc.Standings(ctx, 0)
	if err != nil {
		return Result{}, err
	}
	plan, err := svc.Plan(ctx)
	if err != nil {
		return Result{}, err
	}

	out := Result{
		RunID:     svc.RunID(),
		Rounds:    r.cfg.Rounds,
		Standings: standings,
		Extension: plan.TotalExtraRounds,
	}
	r.report(ctx, out)
	return out, nil
}

// seedMarket generates every round's forward windows up front and
// pre-resolves the realized labels the informed profiles peek at.
func (r *Runner) seedMarket(ctx context.Context, rng *rand.Rand, feed *resolver.StaticFeed, res resolver.Resolver) (map[string]bool, error) {
	truth := make(map[string]bool, r.cfg.Rounds*len(r.horizons))
	start := time.Now().UTC().Truncate(time.Hour)

	for round := 1; round <= r.cfg.Rounds; round++ {
		for _, h := range r.horizons {
			windowStart := start.Add(time.Duration(round) * time.Duration(h.ForwardBars) * h.BarSize)
			feed.Put(h.ID, round, generateWindow(rng, h, windowStart))

			label, err := res.Resolve(ctx, h, round)
			if err != nil {
				return nil, err
			}
			truth[truthKey(round, h.ID)] = label.Label
		}
	}
	return truth, nil
}

func (r *Runner) report(ctx context.Context, res Result) {
	r.logger.Info(ctx, "simulation finished",
		logger.String("run_id", res.RunID),
		logger.Int("rounds", res.Rounds),
		logger.Int("finalists", len(res.Standings)),
		logger.Int("extension_rounds", res.Extension),
	)
	fmt.Printf("\nFinal standings after %d rounds (run %s):\n", res.Rounds, res.RunID)
	fmt.Printf("%-4s %-16s %s\n", "#", "model", "composite log loss")
	for i, row := range res.Standings {
		fmt.Printf("%-4d %-16s %.4f\n", i+1, row.ModelID, row.Composite)
	}
	if res.Extension > 0 {
		fmt.Printf("\nExtension: %d extra rounds recommended\n", res.Extension)
	}
}

func truthKey(round int, h model.HorizonID) string {
	return fmt.Sprintf("%d/%s", round, h)
}
