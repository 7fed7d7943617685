package main

import (
	"fmt"
	"os"

	"github.com/marmos91/filetransfer/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			if configFile != "" {
				path = configFile
				err = config.WriteDefault(path, force)
			} else {
				path, err = config.InitConfig(force)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Start the server with: ftserver serve --config %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}

func newSchemaCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Schema()
			if err != nil {
				return err
			}

			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the schema to a file instead of stdout")
	return cmd
}
