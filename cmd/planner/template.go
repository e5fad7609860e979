package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/service"
)

func newTemplateCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty input workbook for the configured sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := service.PlannerOptions(a.cfg.Planner, a.cfg.Solver)
			payload, err := service.NewExportService(nil, nil, service.ExportConfig{}, a.logger).RenderTemplate(opts)
			if err != nil {
				return fmt.Errorf("render template: %w", err)
			}
			if err := os.WriteFile(output, payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			a.logger.Info("template written", zap.String("path", output), zap.Strings("sessions", opts.Sessions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "Template.xlsx", "Where to write the template")
	return cmd
}
