// Command ftclient talks to an ftserver: it lists, downloads, uploads and
// deletes files, and runs stress scenarios.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/client"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	addr     string
	timeout  time.Duration
	logLevel string
}

func (g *globalFlags) clientConfig() client.Config {
	return client.Config{
		Addr:      g.addr,
		IOTimeout: g.timeout,
	}
}

func newRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:          "ftclient",
		Short:        "Client for the ftserver file transfer server",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetLevel(flags.logLevel)
		},
	}

	root.PersistentFlags().StringVar(&flags.addr, "addr", client.DefaultAddr, "Server address (host:port)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", client.DefaultIOTimeout, "Per-request I/O timeout")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		newListCommand(&flags),
		newGetCommand(&flags),
		newAddCommand(&flags),
		newDeleteCommand(&flags),
		newStressCommand(&flags),
	)

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
