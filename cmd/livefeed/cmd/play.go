package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/livefeed/internal/config"
	"github.com/jmylchreest/livefeed/internal/database"
	"github.com/jmylchreest/livefeed/internal/feed"
	internalhttp "github.com/jmylchreest/livefeed/internal/http"
	"github.com/jmylchreest/livefeed/internal/http/handlers"
	"github.com/jmylchreest/livefeed/internal/observability"
	"github.com/jmylchreest/livefeed/internal/player"
	"github.com/jmylchreest/livefeed/internal/repository"
	"github.com/jmylchreest/livefeed/internal/scheduler"
	"github.com/jmylchreest/livefeed/internal/sink"
	"github.com/jmylchreest/livefeed/internal/startup"
	"github.com/jmylchreest/livefeed/internal/storage"
	"github.com/jmylchreest/livefeed/internal/transport"
	"github.com/jmylchreest/livefeed/internal/urlutil"
	"github.com/jmylchreest/livefeed/internal/version"
)

var playCmd = &cobra.Command{
	Use:   "play [url]",
	Short: "Play a live fMP4 websocket feed",
	Long: `Connect to a websocket feed and play it until interrupted.

The URL may be given as an argument or via transport.url. http(s) URLs and
bare hosts are mapped onto ws(s).

While playing, the control API serves:
- GET  /api/v1/player       engine, sink and transport status
- POST /api/v1/player/seek  relative seek {"delta": -5}
- GET  /api/v1/sessions     session history
- GET  /health              health check
- /docs                     OpenAPI documentation`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().String("record", "", "write accepted media to this file")
	playCmd.Flags().Bool("control", true, "serve the control API")
	playCmd.Flags().Int("control-port", 0, "control API port (default from config)")
	playCmd.Flags().Bool("history", true, "record the session in the history database")
	playCmd.Flags().Bool("reconnect", true, "reconnect when the feed drops")
	playCmd.Flags().Duration("sink-delay", 0, "simulated source buffer processing time per append")
}

func runPlay(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Transport.URL = args[0]
	}
	overrideString(flags, "record", &cfg.Recorder.OutputPath)
	overrideBool(flags, "control", &cfg.Control.Enabled)
	overrideInt(flags, "control-port", &cfg.Control.Port)
	overrideBool(flags, "history", &cfg.History.Enabled)
	overrideBool(flags, "reconnect", &cfg.Transport.Reconnect)

	cfg.Transport.URL = urlutil.NormalizeFeedURL(cfg.Transport.URL)
	if cfg.Transport.URL == "" {
		return errors.New("no feed URL: pass one as an argument or set transport.url")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	sinkDelay, err := flags.GetDuration("sink-delay")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	var recorder io.Writer
	if path := cfg.Recorder.OutputPath; path != "" {
		rec, err := startRecording(logger, path)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				observability.WithError(logger, err).Error("finishing recording failed")
				return
			}
			logger.Info("recording saved", slog.String("path", rec.Path()), slog.Int64("bytes", rec.Written()))
		}()
		recorder = rec
	}

	var (
		db    *database.DB
		store repository.SessionRepository
	)
	if cfg.History.Enabled {
		db, err = openHistory(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store = repository.NewSessionRepository(db.DB)

		pruner, err := scheduler.NewPruner(store, cfg.History.Retention, cfg.History.PruneSchedule, logger)
		if err != nil {
			return err
		}
		if err := pruner.Start(ctx); err != nil {
			return fmt.Errorf("starting history pruner: %w", err)
		}
		defer pruner.Stop()
	}

	buffer := sink.New(sink.Config{
		Logger:          observability.WithComponent(logger, "sink"),
		Recorder:        recorder,
		ProcessingDelay: sinkDelay,
	})
	clock := sink.NewClock(buffer)
	client := transport.NewClient(transportConfig(cfg.Transport), observability.WithComponent(logger, "transport"))

	var sessionStore player.SessionStore
	if store != nil {
		sessionStore = store
	}
	session := player.New(player.Config{
		URL:     cfg.Transport.URL,
		Options: engineOptions(cfg.Engine),
		Logger:  logger,
	}, client, buffer, clock, sessionStore)

	serverErr := make(chan error, 1)
	if cfg.Control.Enabled {
		server := internalhttp.NewServer(cfg.Control, observability.WithComponent(logger, "control"))
		health := handlers.NewHealthHandler(version.Version).WithPlayer(session.Streamer())
		server.Register(
			handlers.NewPlayerHandler(session.Streamer()).
				WithSink(buffer).
				WithTransport(client).
				WithMinAppendsForSeek(cfg.Engine.MinAppendsForSeek),
			health,
		)
		if db != nil {
			health.WithDB(db)
			server.Register(handlers.NewSessionHandler(store))
		}
		go func() { serverErr <- server.ListenAndServe(ctx) }()
	} else {
		close(serverErr)
	}

	record, runErr := session.Run(ctx)
	stop()

	if err := <-serverErr; err != nil {
		observability.WithError(logger, err).Error("control API failed")
	}

	logger.Info("playback finished",
		slog.String("session_id", record.ID.String()),
		slog.String("state", string(record.State)),
		slog.Uint64("appends", record.Appends),
		slog.Uint64("drops", record.Drops),
		slog.Uint64("clock_stalls", clock.Stalls()),
	)
	return runErr
}

// startRecording clears orphaned temporary recordings left next to path and
// opens a new one.
func startRecording(logger *slog.Logger, path string) (*storage.Recording, error) {
	if _, err := startup.CleanupOrphanedRecordings(logger, filepath.Dir(path), startup.DefaultCleanupAge); err != nil {
		observability.WithError(logger, err).Warn("cleaning orphaned recordings failed")
	}
	rec, err := storage.CreateRecording(path)
	if err != nil {
		return nil, err
	}
	logger.Info("recording accepted media", slog.String("path", rec.Path()))
	return rec, nil
}

func openHistory(ctx context.Context, dbCfg config.DatabaseConfig, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(dbCfg, observability.WithComponent(logger, "database"))
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return db, nil
}

// engineOptions maps engine settings onto the feed engine tuning.
func engineOptions(e config.EngineConfig) feed.Options {
	return feed.Options{
		QueueMaxBytes:     e.QueueMaxBytes.Size(),
		TrimThreshold:     e.TrimThreshold,
		TrimAmount:        e.TrimAmount,
		DriftCheckEvery:   e.DriftCheckEvery,
		DriftTolerance:    e.DriftTolerance,
		MinAppendsForSeek: e.MinAppendsForSeek,
		AutoplayAfter:     e.AutoplayAfter,
		DropLogEvery:      e.DropLogEvery,
	}
}

func transportConfig(t config.TransportConfig) transport.Config {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	for k, v := range t.Headers {
		header.Set(k, v)
	}
	return transport.Config{
		URL:               t.URL,
		Header:            header,
		HandshakeTimeout:  t.HandshakeTimeout,
		ReadLimit:         int64(t.ReadLimit.Size()),
		Reconnect:         t.Reconnect,
		ReconnectDelay:    t.ReconnectDelay,
		MaxReconnectDelay: t.MaxReconnectDelay,
	}
}
