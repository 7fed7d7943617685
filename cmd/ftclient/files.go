package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/filetransfer/pkg/client"
	"github.com/spf13/cobra"
)

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List files stored on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(flags.clientConfig())
			defer c.Close()

			names, err := c.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available files:")
			fmt.Fprintln(out, "=============================")
			for _, name := range names {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			fmt.Fprintln(out, "=============================")
			return nil
		},
	}
}

func newGetCommand(flags *globalFlags) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Download a file into the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			c := client.New(flags.clientConfig())
			defer c.Close()

			start := time.Now()
			data, err := c.Get(cmd.Context(), name)
			if err != nil {
				return err
			}

			path := filepath.Join(outputDir, filepath.Base(name))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s (%d bytes) in %.2fs\n",
				name, len(data), time.Since(start).Seconds())
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write the file to")
	return cmd
}

func newAddCommand(flags *globalFlags) *cobra.Command {
	var remoteName string

	cmd := &cobra.Command{
		Use:     "upload <path>",
		Aliases: []string{"add"},
		Short:   "Upload a local file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			name := remoteName
			if name == "" {
				name = filepath.Base(path)
			}

			c := client.New(flags.clientConfig())
			defer c.Close()

			start := time.Now()
			msg, err := c.Add(cmd.Context(), name, data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes in %.2fs)\n", msg, len(data), time.Since(start).Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteName, "name", "", "Name to store the file under (default: base name of path)")
	return cmd
}

func newDeleteCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a file from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(flags.clientConfig())
			defer c.Close()

			msg, err := c.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
