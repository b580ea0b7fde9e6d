package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"automagick_post_producer/producer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and publish one post now",
	Long: `run executes the whole pipeline once with the saved settings and prints
the generation report. It exits non-zero when nothing was published.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.service.RunNow(cmd.Context(), producer.TriggerManual)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Report)
		if !out.Result.Published() {
			return errors.New("generation failed")
		}
		return nil
	},
}

var nextRunCmd = &cobra.Command{
	Use:   "next-run",
	Short: "Print when the saved settings fire next",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// installs the firing on the idle trigger; nothing runs until serve starts it
		if err := a.service.Start(cmd.Context()); err != nil {
			return err
		}
		next, ok := a.service.NextRun()
		if !ok {
			return producer.ErrNotConfigured
		}
		view, err := a.service.Settings(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s at %s)\n", next.Format(time.RFC3339), view.Frequency, view.TimeOfDay)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd, nextRunCmd)
}
