package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"automagick_post_producer/config"
)

var (
	configPath string
	verbose    bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "automagick",
	Short: "Scheduled AI post producer",
	Long: `automagick generates a complete post on a schedule: a topic, an HTML
article, a title and a featured image, then publishes it to WordPress or a
directory of markdown files.

Settings (API key, prompts, frequency, time of day, post type) are stored in
the database; process options come from producer.yaml and AMP_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./producer.yaml or ~/.config/automagick/producer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
