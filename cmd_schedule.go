package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect or clear the recurring generation",
}

var scheduleClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the pending firing from a running server",
	Long: `clear asks a running server to drop its scheduled generation. Saving
settings or restarting the server schedules it again.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		base, _ := cmd.Flags().GetString("server")
		if base == "" {
			base = localURL(cfg.ServerAddr)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, strings.TrimRight(base, "/")+"/api/schedule", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("clear schedule: %s", resp.Status)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schedule cleared")
		return nil
	},
}

// localURL turns a listen address like ":8080" into a URL on localhost.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func init() {
	scheduleClearCmd.Flags().String("server", "", "server base URL (default derived from server_addr)")
	scheduleCmd.AddCommand(scheduleClearCmd)
	rootCmd.AddCommand(scheduleCmd)
}
