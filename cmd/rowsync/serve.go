package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rowsync/internal/logging"
	"rowsync/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference relay",
	Long: `Run the reference relay: the remote authority sync clients connect to.

Every mutation a client sends is applied to the relay's table, stamped
with the next version and broadcast to all connected clients including
the sender.

Endpoints:
  ws://host:port/ws/{client_id}   client connections
  http://host:port/db             current table as JSON
  http://host:port/healthz        liveness
  http://host:port/metrics        Prometheus metrics

An optional YAML seed file populates the table at startup; with --watch
it is reloaded on change and the diff broadcast to every client.

Example usage:
  rowsync serve                        # listen on the default port
  rowsync serve --port 9000
  rowsync serve --seed users.yaml --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := resolveSettings()
		if err != nil {
			fatal(err)
		}

		var logWriter io.Writer = os.Stderr
		if settings.LogFile != "" {
			rotating := logging.Rotating(settings.LogFile)
			defer rotating.Close()
			logWriter = rotating
		}

		server := relay.NewServer(&relay.Config{
			Port:   settings.RelayPort,
			Seed:   settings.Seed,
			Watch:  settings.Watch,
			Logger: logging.NewWithWriter("relay", logWriter),
		})
		if err := server.Start(); err != nil {
			fatal(fmt.Errorf("failed to start relay: %w", err))
		}

		fmt.Printf("Relay listening on %s\n", server.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws/{client_id}\n", server.Addr())
		fmt.Printf("Table dump:         http://%s/db\n", server.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down relay...")
		if err := server.Stop(); err != nil {
			fatal(err)
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (default 8787)")
	serveCmd.Flags().String("seed", "", "YAML seed file loaded at startup")
	serveCmd.Flags().Bool("watch", false, "reload the seed file on change")
	serveCmd.Flags().String("log-file", "", "write logs to a rotating file instead of stderr")

	for _, name := range []string{"port", "seed", "watch", "log-file"} {
		if err := vp.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd)
}
