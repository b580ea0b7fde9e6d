package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var validateKeyCmd = &cobra.Command{
	Use:   "validate-key [api-key]",
	Short: "Check an API key, or the stored one, against the models endpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		valid, err := a.service.ValidateCredential(cmd.Context(), key)
		if err != nil {
			return err
		}
		if !valid {
			return errors.New("API key is not valid")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateKeyCmd)
}
