package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smykla-skalski/hookgate/internal/schema"
)

var schemaOutput bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the configuration file",
	Long: `Print the JSON Schema of the configuration file. With --output, print the
schema of the modify message a hook may write to stdout instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := schema.GenerateJSON(true)
		if schemaOutput {
			data, err = schema.OutputJSON()
		}

		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().BoolVar(&schemaOutput, "output", false, "Print the hook output schema")
}
