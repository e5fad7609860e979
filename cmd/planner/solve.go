package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/planner"
	"github.com/noah-isme/sma-activity-planner/internal/service"
	"github.com/noah-isme/sma-activity-planner/pkg/milp"
)

type solveOptions struct {
	input      string
	output     string
	timeLimit  time.Duration
	backend    string
	csvDir     string
	pdf        string
	hardVetoes bool
}

func newSolveCommand(a *app) *cobra.Command {
	o := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a planning workbook and write the result workbook",
		Example: `  planner solve --input Template.xlsx --output planning.xlsx
  planner solve -i Template.xlsx -o planning.xlsx --time-limit 2m --csv-dir out --pdf statistics.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.solve(cmd.Context(), cmd, o)
		},
	}
	o.bindFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (o *solveOptions) bindFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&o.input, "input", "i", "", "Input workbook with Activities and Preferences sheets")
	flags.StringVarP(&o.output, "output", "o", "", "Result workbook (default Planning_<timestamp>.xlsx)")
	flags.DurationVar(&o.timeLimit, "time-limit", 0, "Solver time limit (default SOLVER_TIME_LIMIT)")
	flags.StringVar(&o.backend, "backend", "", fmt.Sprintf("Solver backend, one of %s (default SOLVER_BACKEND)", strings.Join(milp.Backends(), ", ")))
	flags.StringVar(&o.csvDir, "csv-dir", "", "Also write one CSV file per result table into this directory")
	flags.StringVar(&o.pdf, "pdf", "", "Also write the statistics report as PDF")
	flags.BoolVar(&o.hardVetoes, "hard-vetoes", false, "Forbid assigning vetoed activities instead of penalising them")
}

func (a *app) solve(ctx context.Context, cmd *cobra.Command, o *solveOptions) error {
	solverCfg := a.cfg.Solver
	if o.backend != "" {
		solverCfg.Backend = o.backend
	}
	if o.timeLimit > 0 {
		solverCfg.TimeLimit = o.timeLimit
	}
	plannerCfg := a.cfg.Planner
	if cmd.Flags().Changed("hard-vetoes") {
		plannerCfg.HardVetoes = o.hardVetoes
	}
	p, err := service.NewPlanner(plannerCfg, solverCfg)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(o.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	activities, preferences, err := service.ReadInput(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", o.input, err)
	}

	a.logger.Info("solving",
		zap.String("input", o.input),
		zap.String("backend", solverCfg.Backend),
		zap.Duration("time_limit", solverCfg.TimeLimit))
	outcome, err := p.Run(ctx, activities, preferences)
	if outcome != nil {
		for _, w := range outcome.Warnings {
			a.logger.Warn("input warning", zap.String("warning", w.String()))
		}
	}
	if err != nil {
		return err
	}
	res := outcome.Result
	a.logger.Info("solver finished",
		zap.String("status", string(res.Status)),
		zap.Int("nodes", res.Nodes),
		zap.Duration("runtime", res.Runtime))
	if !res.Optimal() {
		return &nonOptimalError{classification: res.Classification}
	}
	for _, fault := range multierr.Errors(res.Faults()) {
		a.logger.Warn("consistency warning", zap.Error(fault))
	}

	exporter := service.NewExportService(nil, nil, service.ExportConfig{}, a.logger)
	if err := a.writeOutputs(exporter, res, o); err != nil {
		return err
	}
	a.printStatistics(res)
	return nil
}

func (a *app) writeOutputs(exporter *service.ExportService, res *planner.Result, o *solveOptions) error {
	output := o.output
	if output == "" {
		output = fmt.Sprintf("Planning_%s.xlsx", time.Now().Format("20060102_150405"))
	}
	workbook, err := exporter.RenderWorkbook(res)
	if err != nil {
		return fmt.Errorf("render workbook: %w", err)
	}
	if err := os.WriteFile(output, workbook, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	a.logger.Info("result written", zap.String("path", output))

	if o.csvDir != "" {
		files, err := exporter.RenderCSV(res)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(o.csvDir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", o.csvDir, err)
		}
		for name, data := range files {
			path := filepath.Join(o.csvDir, name)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		a.logger.Info("csv tables written", zap.String("dir", o.csvDir), zap.Int("files", len(files)))
	}

	if o.pdf != "" {
		report, err := exporter.RenderStatisticsPDF(res)
		if err != nil {
			return fmt.Errorf("render statistics: %w", err)
		}
		if err := os.WriteFile(o.pdf, report, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", o.pdf, err)
		}
		a.logger.Info("statistics written", zap.String("path", o.pdf))
	}
	return nil
}

func (a *app) printStatistics(res *planner.Result) {
	pairs := planner.StatisticsPairs(res)
	width := 0
	for _, p := range pairs {
		if len(p.Label) > width {
			width = len(p.Label)
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(a.out, "%-*s  %s\n", width, p.Label, p.Value)
	}
}
