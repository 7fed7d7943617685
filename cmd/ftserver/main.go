// Command ftserver runs the file transfer server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ftserver",
		Short: "Terminated-JSON file transfer server",
		Long: `ftserver stores files in a flat namespace and serves LIST, GET, ADD
(alias UPLOAD) and DELETE requests over TCP. Requests end with "\r\n\r\n" and
every response is a single JSON object ending the same way.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/ftserver/config.yaml)")

	root.AddCommand(
		newServeCommand(),
		newInitCommand(),
		newSchemaCommand(),
		newWorkerCommand(),
	)

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
