package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/cwrk-planet/realtime-service/config"
	"github.com/cwrk-planet/realtime-service/internal/collab"
	"github.com/cwrk-planet/realtime-service/internal/dispatch"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/gateway"
	"github.com/cwrk-planet/realtime-service/internal/memory"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/postgres"
	"github.com/cwrk-planet/realtime-service/internal/presence"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
	"github.com/cwrk-planet/realtime-service/internal/service"
	grpcx "github.com/cwrk-planet/realtime-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/realtime-service/internal/transport/http"
	"github.com/cwrk-planet/realtime-service/internal/transport/ws"
	"github.com/cwrk-planet/realtime-service/internal/typing"
	"github.com/cwrk-planet/realtime-service/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting realtime-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version,
		"store", cfg.Store.Backend, "membership", cfg.Membership.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- postgres ---
	var pool *pgxpool.Pool
	if cfg.Store.Backend == "postgres" || cfg.Membership.Backend == "postgres" {
		pool, err = postgres.NewPool(ctx, postgres.Config{
			DSN:               cfg.Postgres.DSN,
			MaxConns:          cfg.Postgres.MaxConns,
			MinConns:          cfg.Postgres.MinConns,
			MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
			ApplicationName:   cfg.Postgres.ApplicationName,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
	}

	// --- store & membership ---
	var store service.MessageStore = memory.NewMessageStore()
	if cfg.Store.Backend == "postgres" {
		store = postgres.NewMessageRepository(pool)
	}
	var (
		members  domain.MembershipChecker = memory.NewMembership(true)
		channels collab.ChannelLister
	)
	if cfg.Membership.Backend == "postgres" {
		repo := postgres.NewMembershipRepository(pool)
		members, channels = repo, repo
	}

	// --- authenticator ---
	auth, err := gateway.NewJWTVerifier(gateway.JWTConfig{
		Alg:           cfg.Auth.Alg,
		Secret:        cfg.Auth.Secret,
		PublicKeyPath: cfg.Auth.PublicKeyPath,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		ClockSkew:     cfg.Auth.ClockSkew,
	})
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// --- realtime core ---
	roomMgr := rooms.NewManager()
	tracker := presence.NewTracker()
	disp := dispatch.New(roomMgr, dispatch.Overflow(cfg.Realtime.Overflow))
	typingCoord := typing.NewCoordinator(disp, cfg.Realtime.TypingTTL)
	gw := gateway.New(auth, members, tracker, roomMgr, disp, typingCoord)
	metrics.RegisterGauges(tracker.Len, roomMgr.Len)

	chatSvc := service.NewChatService(store, members, disp, service.Config{
		DefaultLimit: cfg.History.DefaultLimit,
		MaxLimit:     cfg.History.MaxLimit,
	})

	// --- collaborator events ---
	collabHandler := collab.NewHandler(gw, channels)
	var (
		events httpx.EventPublisher = collabHandler
		bus    *collab.Bus
	)
	checks := map[string]grpcx.Checker{"store": chatSvc.Ping}
	if cfg.Redis.URL != "" {
		client, err := collab.DialRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		bus = collab.NewBus(client, cfg.Redis.CollabChannel)
		defer func() { _ = bus.Close() }()
		events = bus
		checks["redis"] = bus.Ping
	}

	// --- WS & HTTP ---
	wsServer := ws.NewServer(gw, chatSvc, ws.Options{
		SendQueueSize:  cfg.Realtime.SendQueueSize,
		PingEvery:      cfg.Realtime.PingEvery,
		WriteWait:      cfg.Realtime.WriteWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		CheckOrigin:    originChecker(cfg.HTTP.AllowedOrigins),
	})
	handler := httpx.NewHandler(chatSvc, gw, events, cfg.Internal.Token)
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        handler,
		Auth:           auth,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC health ---
	grpcSrv := grpcx.NewServer(checks)

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		return grpcSrv.GRPC().Serve(lis)
	})

	g.Go(func() error {
		grpcSrv.RunProbes(gctx, 5*time.Second)
		return nil
	})

	if bus != nil {
		g.Go(func() error { return bus.Run(gctx, collabHandler) })
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		gw.Shutdown()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
	slog.Info("stopped")
}

// originChecker - пустой список разрешает любой Origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
