package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/billowhq/billow/internal/config"
	"github.com/billowhq/billow/internal/logger"
	"github.com/billowhq/billow/internal/metrics"
	"github.com/billowhq/billow/internal/server"
	"github.com/billowhq/billow/pkg/convqueue"
	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/orchestrator"
	"github.com/billowhq/billow/pkg/reminder"
	"github.com/billowhq/billow/pkg/store"
	"github.com/billowhq/billow/pkg/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Billow daemon",
	Long: `Run the Billow daemon in the foreground: the HTTP API, the
websocket event feed, and the stale-approval reminder sweep.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	hub := events.NewHub(lg.GetZerolog())
	m := metrics.NewMetrics()
	emitter := m.Observe(hub)
	orch := orchestrator.New(st, registry, emitter)
	queue := convqueue.New()
	defer queue.Close()

	srv, err := server.NewServer(server.Options{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Metrics: m,
	}, st, orch, queue, hub.HandleWebSocket, lg.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var sweep *reminder.Reminder
	if cfg.Reminder.Enabled {
		sweep = reminder.New(st, emitter, reminder.Config{
			Schedule:   cfg.Reminder.Schedule,
			StaleAfter: time.Duration(cfg.Reminder.StaleMinutes) * time.Minute,
		})
		if err := sweep.Start(); err != nil {
			return fmt.Errorf("failed to start reminder sweep: %w", err)
		}
		defer sweep.Stop()
	}

	// Hot-reload only touches the log level; server and database changes
	// need a restart.
	var watcher *config.Watcher
	if cfgFile != "" {
		watcher, err = config.NewWatcher(cfgFile, func(next *config.Config) {
			log.Info().Str("level", next.Logging.Level).Msg("Applying reloaded log level")
			logger.SetLevel(next.Logging.Level)
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	return srv.Stop()
}
