package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/go-msgpipe/pipeclient"
)

func newSendCommand() *cobra.Command {
	var (
		name     string
		timeout  time.Duration
		readSize int
	)

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a message to a pipe server and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			cfg := pipeclient.DefaultConfig()
			cfg.ReadBufferSize = readSize
			client := pipeclient.NewClient(cfg)

			ok, err := client.Connect(name, timeout)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no server on channel %q within %s", name, timeout)
			}
			defer client.Disconnect()

			if err := client.SendData([]byte(message)); err != nil {
				return err
			}

			var response pipeclient.BufferSink
			if err := client.WaitForData(&response); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", response.Data)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "msgpipe", "channel name of the server")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the server")
	cmd.Flags().IntVar(&readSize, "read-buffer", 4096, "receive buffer capacity in bytes")

	return cmd
}
