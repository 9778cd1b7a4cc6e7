package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfigueredo/social-live/internal/api"
	"github.com/mfigueredo/social-live/internal/bus"
	"github.com/mfigueredo/social-live/internal/chat"
	"github.com/mfigueredo/social-live/internal/config"
	"github.com/mfigueredo/social-live/internal/domain"
	"github.com/mfigueredo/social-live/internal/live"
	"github.com/mfigueredo/social-live/internal/notifications"
	"github.com/mfigueredo/social-live/internal/sqlite"
	"github.com/mfigueredo/social-live/internal/stories"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// logNotifier surfaces local warnings through the structured log. A real UI
// would swap in a platform notifier behind the same interface.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Warn(title, message string) {
	n.logger.Warn("local notification", "title", title, "message", message)
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	subjectID := os.Getenv("SOCIAL_SUBJECT_ID")
	credential := os.Getenv("SOCIAL_TOKEN")
	if subjectID == "" || credential == "" {
		return fmt.Errorf("SOCIAL_SUBJECT_ID and SOCIAL_TOKEN are required")
	}

	views, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open view store: %w", err)
	}
	defer views.Close()
	logger.Info("opened view store", "path", cfg.DatabasePath)

	client := api.NewClient(cfg.APIBaseURL, credential, logger)
	clock := domain.SystemClock{}

	eventBus := bus.New(logger)
	defer eventBus.Close()

	aggregator := notifications.NewAggregator(client, clock, logger)
	defer aggregator.Attach(eventBus)()

	tracker := stories.NewTracker(
		views, client, clock, logNotifier{logger: logger},
		subjectID,
		cfg.FreshnessWindow, cfg.ExpiryWarnThreshold, cfg.StoryPollInterval,
		logger,
	)
	defer tracker.Attach(eventBus)()

	presence := chat.NewPresence(cfg.TypingTimeout)
	defer presence.Close()
	defer presence.Attach(eventBus)()

	reads := chat.NewReadTracker(client, logger)
	defer reads.Attach(eventBus)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	manager := live.NewManager(cfg.LiveURL, cfg.MaxReconnectAttempts, cfg.BaseBackoffDelay, logger)
	manager.OnMessage(eventBus.Dispatch)
	manager.OnStateChange(func(st domain.ConnectionState) {
		logger.Info("connection state", "phase", st.Phase, "attempt", st.Attempt, "gave_up", st.GaveUp)
		if st.Phase != domain.PhaseConnected {
			return
		}
		// Frames may have been lost across the reconnect; reconcile against
		// the durable sources rather than assuming a gapless stream.
		go func() {
			if err := aggregator.Refresh(ctx); err != nil {
				logger.Warn("notification refresh failed", "error", err)
			}
			if err := tracker.Refresh(ctx); err != nil {
				logger.Warn("story refresh failed", "error", err)
			}
		}()
	})

	if count, err := aggregator.ServerUnreadCount(ctx); err != nil {
		logger.Warn("unread-count bootstrap failed", "error", err)
	} else {
		logger.Info("unread notifications", "count", count)
	}

	if err := manager.Connect(ctx, live.Identity{SubjectID: subjectID, Credential: credential}); err != nil {
		if errors.Is(err, live.ErrUnauthorized) {
			return fmt.Errorf("connect: %w", err)
		}
		// Transient failure; the reconnect schedule is already running.
		logger.Warn("initial connect failed", "error", err)
	}
	defer manager.Disconnect()

	// Expiry warnings are time-based, so the poll loop runs regardless of
	// connection state.
	go tracker.Run(ctx)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	return nil
}
