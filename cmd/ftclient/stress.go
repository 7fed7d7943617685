package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/filetransfer/pkg/loadgen"
	"github.com/spf13/cobra"
)

type stressFlags struct {
	operations []string
	sizesMB    []int
	clients    []int
	serverPool int
	dir        string
	results    string
	cleanup    bool
}

func newStressCommand(flags *globalFlags) *cobra.Command {
	var sf stressFlags

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run upload and download stress scenarios and append a CSV report",
		Long: `Run every operation × volume × client count combination against the
server. Each client uses its own connection. Results are appended to the
report with row numbers continuing from the previous run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			volumes := make([]loadgen.Volume, 0, len(sf.sizesMB))
			for _, mb := range sf.sizesMB {
				if mb <= 0 {
					return fmt.Errorf("volume size must be positive, got %d", mb)
				}
				volumes = append(volumes, loadgen.MegabyteVolume(mb))
			}

			runner, err := loadgen.NewRunner(loadgen.Config{
				Client:         flags.clientConfig(),
				Dir:            sf.dir,
				Operations:     sf.operations,
				Volumes:        volumes,
				ClientCounts:   sf.clients,
				ServerPoolSize: sf.serverPool,
				Cleanup:        sf.cleanup,
			})
			if err != nil {
				return err
			}

			results, runErr := runner.Run(ctx)

			if len(results) > 0 {
				first, last, err := loadgen.AppendResults(sf.results, results)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Results appended to %s (rows %d to %d)\n", sf.results, first, last)
			}

			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&sf.operations, "operations", loadgen.DefaultOperations, "Operations to run (upload, download)")
	cmd.Flags().IntSliceVar(&sf.sizesMB, "sizes", []int{10, 50, 100}, "Volume sizes in MB")
	cmd.Flags().IntSliceVar(&sf.clients, "clients", loadgen.DefaultClientCounts, "Concurrent client counts")
	cmd.Flags().IntVar(&sf.serverPool, "server-pool", 1, "Server capacity, recorded in the report")
	cmd.Flags().StringVar(&sf.dir, "dir", ".", "Directory for generated volumes")
	cmd.Flags().StringVar(&sf.results, "results", loadgen.DefaultResultsPath, "CSV report to append to")
	cmd.Flags().BoolVar(&sf.cleanup, "cleanup", false, "Delete uploaded volumes from the server afterwards")

	return cmd
}
