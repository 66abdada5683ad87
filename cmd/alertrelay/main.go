// Command alertrelay ingests NWS text products over NWWS-OI and the NWS API,
// normalizes them into alerts, and serves them over REST and WebSocket.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-alert-relay/internal/adapter/httpapi"
	kafkaadapter "github.com/couchcryptid/storm-alert-relay/internal/adapter/kafka"
	"github.com/couchcryptid/storm-alert-relay/internal/config"
	"github.com/couchcryptid/storm-alert-relay/internal/hub"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/source/nwsapi"
	"github.com/couchcryptid/storm-alert-relay/internal/source/nwws"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
	"github.com/couchcryptid/storm-alert-relay/internal/ugcref"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// An unreadable reference table is a configuration error; only an empty
	// path opts out of location names.
	refs := ugcref.Empty()
	if cfg.UGCMapPath == "" {
		logger.Info("ugc reference table disabled, zone names will be raw codes")
	} else {
		refs, err = ugcref.Load(cfg.UGCMapPath)
		if err != nil {
			logger.Error("loading the ugc reference table failed", "path", cfg.UGCMapPath, "error", err)
			os.Exit(1)
		}
		logger.Info("ugc reference table loaded", "path", cfg.UGCMapPath, "entries", refs.Len())
	}

	st := store.New(logger, metrics, store.Options{
		Clock:           clock,
		ExpirationGrace: cfg.ExpirationGrace,
		PersistPath:     cfg.PersistPath,
		PersistInterval: cfg.PersistInterval,
	})
	if cfg.PersistPath != "" {
		if n, err := st.Restore(cfg.PersistPath); err != nil {
			logger.Warn("restoring persisted alerts failed", "path", cfg.PersistPath, "error", err)
		} else if n > 0 {
			logger.Info("restored persisted alerts", "count", n)
		}
	}

	// Sources are optional; the status function reflects whichever ran.
	var push *nwws.Source
	var poller *nwsapi.Poller

	statusFn := func() any {
		status := map[string]any{"alert_count": st.Len()}
		if push != nil {
			status["push_connected"] = push.Connected()
		}
		if poller != nil {
			status["last_poll_success"] = poller.LastSuccess()
		}
		return status
	}
	h := hub.New(logger, metrics, clock, st, statusFn)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Component failures that should take the process down with a non-zero
	// exit: a rejected NWWS login, a failed listener bind.
	fatal := make(chan error, 2)
	fail := func(err error) {
		select {
		case fatal <- err:
		default:
		}
		stop()
	}

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		st.Subscribe(publisher.Listener())
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
		logger.Info("kafka lifecycle publisher enabled", "topic", cfg.KafkaTopic)
	}

	if cfg.NWWSEnabled {
		push = nwws.New(nwws.Config{
			Host:         cfg.NWWSHost,
			Port:         cfg.NWWSPort,
			Username:     cfg.NWWSUsername,
			Password:     cfg.NWWSPassword,
			Room:         cfg.NWWSRoom,
			Nickname:     cfg.NWWSNickname,
			FilterStates: cfg.FilterStates,
		}, logger, metrics, clock, st, refs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("push source stopped", "error", err)
				fail(err)
			}
		}()
	} else {
		logger.Info("nwws push source disabled")
	}

	client := nwsapi.NewClient(cfg.NWSAPIBase, cfg.NWSAPIUserAgent, logger, clock)
	poller = nwsapi.NewPoller(client, st, refs, cfg.FilterStates, cfg.PollInterval, logger, metrics, clock)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		st.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	var pushStatus httpapi.PushStatus
	if push != nil {
		pushStatus = push
	}
	srv := httpapi.NewServer(cfg.HTTPAddr(), st, h, pushStatus, poller, logger, clock)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			fail(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	select {
	case err := <-fatal:
		logger.Error("exiting after component failure", "error", err)
		os.Exit(1)
	default:
	}

	logger.Info("shutdown complete")
}
