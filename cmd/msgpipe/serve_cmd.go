package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cyberinferno/go-msgpipe/logger"
	"github.com/cyberinferno/go-msgpipe/pipeserver"
)

func newServeCommand() *cobra.Command {
	var (
		name      string
		readSize  int
		writeSize int
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server on a named channel",
		Long: "Run an echo server that reassembles each incoming message and sends it " +
			"back. Use a small --read-buffer to exercise overflow reassembly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := logger.NewZerologLogger(zerolog.New(os.Stdout), "msgpipe", level)

			cfg := pipeserver.DefaultConfig(name)
			cfg.ReadBufferSize = readSize
			cfg.WriteBufferSize = writeSize
			cfg.Logger = log

			srv, err := pipeserver.NewServer(cfg, pipeserver.NewEchoCallbacks(log))
			if err != nil {
				return err
			}
			return srv.Run()
		},
	}

	cmd.Flags().StringVar(&name, "name", "msgpipe", "channel name clients connect to")
	cmd.Flags().IntVar(&readSize, "read-buffer", 4096, "read buffer capacity in bytes")
	cmd.Flags().IntVar(&writeSize, "write-buffer", 4096, "write buffer capacity in bytes")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log per-message events")

	return cmd
}
