// Command simulate runs a synthetic tournament end to end: generated
// market data, profiled forecasters, every elimination phase, final
// standings and the extension plan.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/okian/gauntlet/internal/sim"
	"github.com/okian/gauntlet/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "simulate",
		Usage: "run a synthetic forecasting tournament",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "rounds", Value: 24, Usage: "number of rounds to play"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
			&cli.IntFlag{Name: "sharp", Value: 3, Usage: "number of sharp models"},
			&cli.IntFlag{Name: "calibrated", Value: 3, Usage: "number of calibrated models"},
			&cli.IntFlag{Name: "noisy", Value: 2, Usage: "number of noisy models"},
			&cli.IntFlag{Name: "constant", Value: 1, Usage: "number of constant-output models"},
			&cli.IntFlag{Name: "extremist", Value: 1, Usage: "number of extremist models"},
			&cli.IntFlag{Name: "coinflip", Value: 1, Usage: "number of coin-flip models"},
			&cli.IntFlag{Name: "flaky", Value: 1, Usage: "number of flaky models"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log verbosity: debug, info, warn, error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := logger.Init(); err != nil {
		return err
	}
	if err := logger.SetLevelString(c.String("log-level")); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := sim.Config{
		Rounds:     c.Int("rounds"),
		Seed:       c.Int64("seed"),
		Sharp:      c.Int("sharp"),
		Calibrated: c.Int("calibrated"),
		Noisy:      c.Int("noisy"),
		Constant:   c.Int("constant"),
		Extremist:  c.Int("extremist"),
		CoinFlip:   c.Int("coinflip"),
		Flaky:      c.Int("flaky"),
	}

	runner, err := sim.NewRunner(cfg)
	if err != nil {
		return err
	}
	_, err = runner.Run(ctx)
	return err
}
