package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/pkg/config"
	"github.com/noah-isme/sma-activity-planner/pkg/logger"
)

// exitNonOptimal is returned when the solver finished without an optimal plan.
const exitNonOptimal = 2

type nonOptimalError struct {
	classification string
}

func (e *nonOptimalError) Error() string {
	return e.classification
}

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand(os.Stdout).ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var nonOptimal *nonOptimalError
	if errors.As(err, &nonOptimal) {
		os.Exit(exitNonOptimal)
	}
	os.Exit(1)
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}
	var logLevel string

	root := &cobra.Command{
		Use:   "planner",
		Short: "Plan an activity week from an Activities/Preferences workbook",
		Long: `planner assigns every student to exactly one activity in every session of
the week, honouring capacities, multi-session blocks and votes, by solving a
mixed-integer linear program.

Defaults come from the same environment variables as the API server
(PLANNER_*, SOLVER_*, JWT_*), optionally read from a .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel == "" {
				logLevel = cfg.Log.Level
			}
			l, err := logger.NewCLI(logLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.cfg, a.logger = cfg, l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	root.SetOut(out)

	root.AddCommand(newSolveCommand(a), newTemplateCommand(a), newTokenCommand(a))
	return root
}
