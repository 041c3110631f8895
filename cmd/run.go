package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"LinkFM/client"
	"LinkFM/config"
	"LinkFM/logger"
	"LinkFM/server"
)

var runResume bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node pool daemon",
	Long: `Connects the configured node pool, restores persisted player sessions and
serves the diagnostics HTTP API until interrupted. On shutdown every active
session is saved so a restart can resume it.

The daemon has no chat gateway of its own; voice signalling is a no-op until
an embedding bot drives the library directly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		c, err := client.New(cfg, noopGateway{})
		if err != nil {
			log.Fatalf("failed to initialize client: %v", err)
		}

		readyCtx, cancel := context.WithTimeout(context.Background(), cfg.ReadyWait)
		if err := c.WaitUntilReady(readyCtx); err != nil {
			logger.Warn("node pool not fully ready, continuing",
				logger.Int("available", c.Manager().AvailableCount()))
		}
		cancel()

		if err := c.RestoreAll(context.Background()); err != nil {
			logger.Warn("player state restore incomplete", logger.ErrorField(err))
		}

		var diag *server.Server
		if cfg.StatusAddr != "" {
			diag = server.New(c, cfg.StatusAddr)
			diag.Start()
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if diag != nil {
			if err := diag.Stop(ctx); err != nil {
				logger.Warn("diagnostics server shutdown failed", logger.ErrorField(err))
			}
		}
		c.Shutdown(ctx, runResume)
	},
}

// noopGateway satisfies the voice seam for gateway-less daemon runs. It
// answers presence checks optimistically so restored sessions are kept and
// the alone timers never fire; an embedding bot replaces it with real
// presence data.
type noopGateway struct{}

func (noopGateway) ConnectVoice(ctx context.Context, guildID, channelID int64, selfDeaf bool) error {
	return nil
}
func (noopGateway) DisconnectVoice(ctx context.Context, guildID int64) error { return nil }
func (noopGateway) ChannelMembers(guildID, channelID int64) (int, error)     { return 1, nil }
func (noopGateway) ChannelExists(guildID, channelID int64) bool              { return true }

func init() {
	runCmd.Flags().BoolVar(&runResume, "resume", true, "leave node-side players alive on shutdown so a restart resumes them")
	rootCmd.AddCommand(runCmd)
}
