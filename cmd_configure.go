package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"automagick_post_producer/producer"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save generation settings",
	Long: `configure updates the stored settings; flags left out keep their saved
value. The API key is encrypted with site_secret before it is stored.

A running server picks the change up on restart. PUT /api/settings applies
it immediately.`,
	RunE: runConfigure,
}

func init() {
	f := configureCmd.Flags()
	f.String("api-key", "", "OpenAI API key")
	f.String("topic-prompt", "", "prompt that asks for a topic")
	f.String("image-style", "", "style suffix appended to image prompts")
	f.String("frequency", "", "hourly, twicedaily, daily, weekly or a configured schedule")
	f.String("time", "", "time of day as HH:MM")
	f.String("post-type", "", "content type to publish, e.g. post or page")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := a.service.Settings(cmd.Context())
	if err != nil {
		return err
	}
	in := producer.SettingsInput{
		TopicPrompt: current.TopicPrompt,
		ImageStyle:  current.ImageStyle,
		Frequency:   current.Frequency,
		TimeOfDay:   current.TimeOfDay,
		ContentType: current.ContentType,
	}
	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"api-key":      &in.APIKey,
		"topic-prompt": &in.TopicPrompt,
		"image-style":  &in.ImageStyle,
		"frequency":    &in.Frequency,
		"time":         &in.TimeOfDay,
		"post-type":    &in.ContentType,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	view, err := a.service.SaveSettings(cmd.Context(), in)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
