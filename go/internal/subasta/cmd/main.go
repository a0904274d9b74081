package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/subastafrutas/console/go/clients/subastas_client"
	"github.com/subastafrutas/console/go/internal/config"
	"github.com/subastafrutas/console/go/internal/permissions"
	"github.com/subastafrutas/console/go/internal/pubsub"
	"github.com/subastafrutas/console/go/internal/subasta/bus"
	"github.com/subastafrutas/console/go/internal/subasta/detail"
	"github.com/subastafrutas/console/go/internal/subasta/events"
	"github.com/subastafrutas/console/go/internal/subasta/relay"
	"github.com/subastafrutas/console/go/internal/subasta/status"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("console stopped with error")
	}
	log.Info().Msg("console shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	api := subastas_client.NewSubastasClient(cfg.API.BaseURL, cfg.API.Token)
	api.SetTimeout(cfg.API.Timeout)

	var identity permissions.Identity
	if cfg.API.Token != "" {
		id, err := permissions.FromToken(cfg.API.Token, []byte(cfg.API.JWTKey))
		if err != nil {
			return fmt.Errorf("read api token: %w", err)
		}
		identity = id
		log.Info().
			Int64("user_id", identity.UserID).
			Str("user_type", identity.UserType).
			Bool("can_cancel", identity.Permissions.Allows(permissions.ModuleAuctions, permissions.CodeCancel)).
			Msg("authenticated")
	}

	var eventRelay bus.Relay
	var monitor *relayMonitor
	if cfg.Relay.NATSURL != "" {
		jsCfg := relay.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Relay.NATSURL
		jsCfg.StreamName = cfg.Relay.StreamName
		jsCfg.SubjectPrefix = cfg.Relay.SubjectPrefix

		publisher, err := relay.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return fmt.Errorf("create relay: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("relay close failed")
			}
		}()
		monitor = &relayMonitor{JetStreamPublisher: publisher, Counters: relay.NewCounters()}
		eventRelay = relay.NewMetricPublisher(publisher, monitor.Counters)
	}

	busCfg := bus.DefaultConfig()
	busCfg.URL = strings.TrimRight(cfg.Push.WSBaseURL, "/") + "/ws/subastas/"
	busCfg.Token = cfg.API.Token
	busCfg.ReconnectInterval = cfg.Push.ReconnectInterval
	busCfg.PingInterval = cfg.Push.PingInterval
	busCfg.ReconcileInterval = cfg.Push.ReconcileInterval
	busCfg.MaxReconcileBackoff = cfg.Push.MaxReconcileBackoff
	for name, window := range cfg.Push.DisplayWindows {
		busCfg.DisplayWindows[events.Type(name)] = window
	}
	busCfg.Relay = eventRelay

	var reconciler bus.Reconciler
	if !identity.IsClient() && cfg.API.Token != "" {
		reconciler = api
	}
	eventBus := bus.New(busCfg, reconciler)
	if err := eventBus.Start(ctx); err != nil {
		return err
	}
	defer eventBus.Close()

	unsubscribe := eventBus.Subscribe(func(ev events.Event) {
		log.Info().
			Str("tipo", ev.Type.String()).
			Int64("auction_id", ev.AuctionID).
			Uint64("changes", eventBus.Changes()).
			Msg("auction event")
	})
	defer unsubscribe()

	statusCfg := status.DefaultConfig()
	statusCfg.Port = cfg.Status.Port
	statusCfg.AllowedOrigins = cfg.Status.AllowedOrigins
	server := status.NewServer(statusCfg, eventBus)
	if monitor != nil {
		server.SetRelay(monitor)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.ListenAndServe)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.View.AuctionID > 0 {
		g.Go(func() error {
			return followAuction(gctx, cfg, api, identity, server)
		})
	}

	return g.Wait()
}

// relayMonitor exposes relay connectivity and counters to the status server.
type relayMonitor struct {
	*relay.JetStreamPublisher
	*relay.Counters
}

// followAuction keeps a detail view open for the configured auction and
// logs its notices until ctx is done.
func followAuction(ctx context.Context, cfg config.Config, api detail.API, identity permissions.Identity, server *status.Server) error {
	edits := pubsub.NewTopic[detail.EditRequest]("edit-requests")
	defer edits.Subscribe(func(req detail.EditRequest) {
		log.Info().Int64("auction_id", req.AuctionID).Msg("edit requested")
	})()

	notices := pubsub.NewTopic[detail.Notice]("auction-notices")
	defer notices.Subscribe(func(n detail.Notice) {
		log.Info().
			Str("kind", string(n.Kind)).
			Int64("auction_id", n.AuctionID).
			Msg(n.Message)
	})()

	viewCfg := detail.DefaultConfig()
	viewCfg.AuctionID = cfg.View.AuctionID
	viewCfg.WSBaseURL = cfg.Push.WSBaseURL
	viewCfg.Token = cfg.API.Token
	viewCfg.UserID = identity.UserID
	viewCfg.TickInterval = cfg.View.TickInterval
	viewCfg.ResyncInterval = cfg.View.ResyncInterval
	viewCfg.ReconnectInterval = cfg.Push.ReconnectInterval
	viewCfg.PingInterval = cfg.Push.PingInterval
	viewCfg.EditRequests = edits
	viewCfg.Notices = notices

	view, err := detail.Open(ctx, viewCfg, api)
	if err != nil {
		return err
	}
	defer func() {
		view.Close()
		view.Wait()
	}()

	detach := server.AttachView(cfg.View.AuctionID, view)
	defer detach()

	<-ctx.Done()
	return nil
}
