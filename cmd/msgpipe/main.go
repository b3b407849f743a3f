// Command msgpipe is a manual test harness for the pipe transport: "serve"
// runs an echo server on a named channel, "send" connects as a client, sends
// one message and prints the reassembled response.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "msgpipe",
		Short:         "Message-framed IPC pipe harness",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newSendCommand())
	return root
}
