package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/cafescout/internal/catalog"
	"github.com/example/cafescout/internal/device"
	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geo"
	"github.com/example/cafescout/internal/discovery/geofix"
	"github.com/example/cafescout/internal/discovery/handler"
	"github.com/example/cafescout/internal/discovery/projector"
	"github.com/example/cafescout/internal/discovery/search"
	"github.com/example/cafescout/internal/http/middleware"
	"github.com/example/cafescout/internal/notify"
	"github.com/example/cafescout/pkg/observability"
)

type appConfig struct {
	HTTPAddr      string
	GRPCAddr      string
	RedisAddr     string
	NATSURL       string
	NotifySubject string
	FallbackLogo  string
	SessionTTL    time.Duration

	SearchDebounce time.Duration
	SearchCommit   time.Duration
	SearchResolve  time.Duration
	SearchMinLen   int

	FixCoarseTimeout time.Duration
	FixFineTimeout   time.Duration
	FixCacheMaxAge   time.Duration
	FixAccuracyGoalM float64
	FixRefinePause   time.Duration
	FixRetryPause    time.Duration
	FixMaxAttempts   int

	ReadRate   float64
	ReadBurst  float64
	InputRate  float64
	InputBurst float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("discovery-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "discovery-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("discoveryservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var cat catalog.Source
	if redisClient != nil {
		cat = catalog.NewRedisCatalog(redisClient)
	} else {
		logger.Warn("redis not configured, using in-memory catalog")
		cat = catalog.NewMemoryCatalog()
	}

	clock := domain.SystemClock{}
	proj := projector.New(clock, cfg.FallbackLogo)
	observer := device.NewFixObserver(clock)
	natsSink := notify.NewNATSSink(natsConn, cfg.NotifySubject)

	factory := buildSessionFactory(cat, proj, observer, natsSink, clock, logger, cfg)
	sessions := search.NewManager(factory, cfg.SessionTTL, clock, logger.Named("sessions"))
	go func() {
		if err := sessions.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session janitor stopped", zap.Error(err))
		}
	}()

	limiter := middleware.NewRateLimiter(redisClient,
		middleware.RateConfig{Rate: cfg.ReadRate, Burst: cfg.ReadBurst},
		middleware.RateConfig{Rate: cfg.InputRate, Burst: cfg.InputBurst})

	ready := func() bool {
		if redisClient == nil {
			return true
		}
		return redisClient.Ping(context.Background()).Err() == nil
	}

	r := chi.NewRouter()
	r.Use(limiter.Middleware)
	r.Mount("/", handler.New(cat, proj, sessions, clock, logger.Named("http")).Router())
	r.Mount("/observability", observability.MetricsRouter(ready))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	device.RegisterFixIngestServer(grpcSrv, device.NewServer(observer))
	go runGRPC(logger, grpcSrv, cfg.GRPCAddr)

	go func() {
		logger.Info("discovery service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runGRPC(logger *zap.Logger, srv *grpc.Server, addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}
	logger.Info("fix ingest grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

// buildSessionFactory wires one coordinator, acquirer and camera recorder per
// client session. Device fixes arrive over the gRPC stream and reach the
// acquirer through the shared observer.
func buildSessionFactory(cat catalog.Source, proj *projector.Projector, observer *device.FixObserver,
	natsSink *notify.NATSSink, clock domain.Clock, logger *zap.Logger, cfg appConfig) search.Factory {

	searchCfg := search.Config{
		Debounce:     cfg.SearchDebounce,
		CommitDelay:  cfg.SearchCommit,
		ResolveDelay: cfg.SearchResolve,
		MinLength:    cfg.SearchMinLen,
	}
	fixCfg := geofix.Config{
		CoarseTimeout: cfg.FixCoarseTimeout,
		FineTimeout:   cfg.FixFineTimeout,
		CacheMaxAge:   cfg.FixCacheMaxAge,
		AccuracyGoalM: cfg.FixAccuracyGoalM,
		RefinePause:   cfg.FixRefinePause,
		RetryPause:    cfg.FixRetryPause,
		MaxAttempts:   cfg.FixMaxAttempts,
	}

	return func(id uuid.UUID) (*search.Session, error) {
		camera := &search.CameraRecorder{}
		memSink := notify.NewMemorySink()
		sink := notify.MultiSink{memSink, natsSink}
		sessionLog := logger.Named("session").With(zap.String("session_id", id.String()))

		locator := device.NewStreamLocator(observer, id, clock)
		acquirer := geofix.NewAcquirer(locator, clock, sessionLog.Named("geofix"), fixCfg, func(st geofix.State) {
			switch st.Phase {
			case geofix.PhaseSucceeded:
				if st.Fix != nil {
					camera.FlyTo(st.Fix.Point(), geofix.ZoomForAccuracy(st.Fix.AccuracyM), 1200*time.Millisecond)
				}
			case geofix.PhaseFailed:
				_ = sink.Publish(context.Background(), domain.Notification{
					Kind:     domain.NotifyError,
					Text:     st.Kind.Message(),
					IconHint: "location-off",
					Duration: 4 * time.Second,
				})
			}
		})

		resolver := search.ResolverFunc(func(term string) []domain.CafeRecord {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			branches, err := cat.ListBranches(ctx)
			if err != nil {
				sessionLog.Error("list branches", zap.Error(err))
				return nil
			}
			stores, err := cat.ListStores(ctx)
			if err != nil {
				sessionLog.Error("list stores", zap.Error(err))
				return nil
			}
			cafes := proj.Project(branches, stores, acquirer.LastFix())
			cafes = geo.FilterByTerm(cafes, term)
			return geo.SortCafes(cafes, domain.SortByDistance)
		})

		coord := search.NewCoordinator(resolver, acquirer, camera, sink, sessionLog.Named("search"), searchCfg, nil)

		sess := &search.Session{
			ID:            id,
			Coordinator:   coord,
			Acquirer:      acquirer,
			Camera:        camera,
			Notifications: memSink,
		}
		sess.SetCleanup(func() { observer.Forget(id) })
		return sess, nil
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:      getenv("GRPC_ADDR", ":9090"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		NATSURL:       os.Getenv("NATS_URL"),
		NotifySubject: getenv("NOTIFY_SUBJECT", "discovery.notifications"),
		FallbackLogo:  getenv("FALLBACK_LOGO_URL", "/assets/logo-default.png"),
		SessionTTL:    time.Duration(parseIntEnv("SESSION_TTL_MIN", 30)) * time.Minute,

		SearchDebounce: time.Duration(parseIntEnv("SEARCH_DEBOUNCE_MS", 800)) * time.Millisecond,
		SearchCommit:   time.Duration(parseIntEnv("SEARCH_COMMIT_MS", 200)) * time.Millisecond,
		SearchResolve:  time.Duration(parseIntEnv("SEARCH_RESOLVE_MS", 400)) * time.Millisecond,
		SearchMinLen:   parseIntEnv("SEARCH_MIN_LENGTH", 3),

		FixCoarseTimeout: time.Duration(parseIntEnv("FIX_COARSE_TIMEOUT_MS", 3000)) * time.Millisecond,
		FixFineTimeout:   time.Duration(parseIntEnv("FIX_FINE_TIMEOUT_MS", 10000)) * time.Millisecond,
		FixCacheMaxAge:   time.Duration(parseIntEnv("FIX_CACHE_MAX_AGE_MS", 60000)) * time.Millisecond,
		FixAccuracyGoalM: parseFloatEnv("FIX_ACCURACY_GOAL_M", 100),
		FixRefinePause:   time.Duration(parseIntEnv("FIX_REFINE_PAUSE_MS", 1500)) * time.Millisecond,
		FixRetryPause:    time.Duration(parseIntEnv("FIX_RETRY_PAUSE_MS", 1000)) * time.Millisecond,
		FixMaxAttempts:   parseIntEnv("FIX_MAX_ATTEMPTS", 2),

		ReadRate:   parseFloatEnv("RATE_READ_RPS", 20),
		ReadBurst:  parseFloatEnv("RATE_READ_BURST", 40),
		InputRate:  parseFloatEnv("RATE_INPUT_RPS", 10),
		InputBurst: parseFloatEnv("RATE_INPUT_BURST", 30),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
