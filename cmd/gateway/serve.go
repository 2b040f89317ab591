package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admission gateway in front of UPSTREAM_URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			log, err := newLogger(cfg.logLevel, cfg.logFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, log)
		},
	}
}

// gateway junta stores, limiters e pipelines montados a partir da config.
type gateway struct {
	cfg      config
	log      *zap.Logger
	rdb      *redis.Client
	shared   domain.CounterStore
	local    *infra.MemoryCounterStore
	owners   domain.OwnerDirectory
	stats    domain.StatsStore
	registry *prometheus.Registry
	// statsAsync envia para o Redis fora do caminho da requisição
	statsAsync *infra.AsyncStats

	resolver  *application.IdentityResolver
	standard  *application.WindowLimiter
	fast      *application.FastLimiter
	endpoints *application.EndpointLimiter
}

func newGateway(ctx context.Context, cfg config, log *zap.Logger) (*gateway, error) {
	g := &gateway{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	g.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var err error
	g.resolver, err = application.NewIdentityResolver(cfg.auth.identity())
	if err != nil {
		return nil, err
	}

	if cfg.redisAddr != "" {
		g.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := g.rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			// o limiter cai no contador local até o Redis voltar
			log.Warn("redis ping failed, starting degraded", zap.String("addr", cfg.redisAddr), zap.Error(err))
		}
	}

	g.local = infra.NewMemoryCounterStore()
	switch cfg.storeBackend {
	case "redis":
		g.shared = infra.NewRedisCounterStore(g.rdb, infra.WithClockSync(cfg.clockSyncEvery))
	case "memcache":
		g.shared = infra.NewMemcacheCounterStore(cfg.storeTimeout, 64, cfg.memcacheAddrs...)
	}

	if g.rdb != nil {
		g.owners = infra.NewRedisOwnerDirectory(g.rdb, "")
	} else {
		log.Warn("REDIS_ADDR not set, using in-memory owner directory (ownership checks answer not found)")
		g.owners = infra.NewMemoryOwnerDirectory()
	}

	prom, err := infra.NewPrometheusStats(g.registry)
	if err != nil {
		return nil, err
	}
	tee := infra.TeeStats{prom}
	if cfg.statsRedisEnabled {
		g.statsAsync = infra.NewAsyncStats(infra.NewRedisStatsStore(g.rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		),
			infra.WithAsyncBuffer(cfg.statsQueue),
			infra.WithAsyncTimeout(cfg.storeTimeout),
			infra.WithAsyncLogger(log),
		)
		g.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "stats_dropped_total",
			Help:      "Stats events dropped because the Redis stats queue was full.",
		}, func() float64 { return float64(g.statsAsync.Dropped()) }))
		tee = append(tee, g.statsAsync)
	}
	g.stats = tee

	wopts := []application.WindowOption{
		application.WithStoreTimeout(cfg.storeTimeout),
		application.WithLogger(log),
	}
	g.standard, err = application.NewWindowLimiter("standard", cfg.rate, g.shared, g.local, wopts...)
	if err != nil {
		return nil, fmt.Errorf("standard rate limit: %w", err)
	}
	g.endpoints, err = application.NewEndpointLimiter(cfg.endpointLimits, g.shared, g.local, wopts...)
	if err != nil {
		return nil, fmt.Errorf("endpoint rate limits: %w", err)
	}

	fopts := []application.FastOption{application.WithFastLogger(log)}
	if g.shared != nil {
		fopts = append(fopts, application.WithSharedStore(g.shared))
	}
	g.fast, err = application.NewFastLimiter(application.FastConfig{
		MaxPerWindow:   cfg.bidRPS,
		Window:         time.Second,
		GlobalMax:      cfg.bidGlobalMax,
		ReconcileEvery: cfg.bidReconcileEvery,
	}, fopts...)
	if err != nil {
		return nil, fmt.Errorf("bid rate limit: %w", err)
	}
	return g, nil
}

func (g *gateway) start(ctx context.Context) {
	g.local.StartJanitor(ctx)
	g.fast.Start(ctx)
	if g.statsAsync != nil {
		g.statsAsync.Start(ctx)
	}
}

func (g *gateway) close() {
	if g.rdb != nil {
		_ = g.rdb.Close()
	}
}

func (g *gateway) pipeline(name string, stages ...admission.Stage) *admission.Pipeline {
	return admission.New(admission.Options{
		Name:         name,
		Logger:       g.log,
		Stats:        g.stats,
		HideNotFound: g.cfg.hideNotFound,
	}, stages...)
}

// standardPipeline roda identidade → acesso → rate (endpoint, depois padrão).
func (g *gateway) standardPipeline(name string, access ...admission.Stage) *admission.Pipeline {
	client := admission.DefaultKeyFunc("", g.cfg.trustXFF)
	stages := []admission.Stage{admission.Authenticate(g.resolver, g.cfg.auth.apiKeyHeader)}
	stages = append(stages, access...)
	stages = append(stages,
		admission.EndpointRateLimit(g.endpoints, client),
		admission.RateLimit(g.standard, admission.RouteKeyFunc(client)),
	)
	return g.pipeline(name, stages...)
}

func (g *gateway) routes(upstream http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		admission.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle(g.cfg.metricsPath, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{Registry: g.registry}))

	forward := admission.StripCredentials(g.cfg.auth.apiKeyHeader)(upstream)

	// rota de lances: rate rápido antes da identidade
	client := admission.DefaultKeyFunc("", g.cfg.trustXFF)
	bid := g.pipeline("bid",
		admission.FastRateLimit(g.fast, client),
		admission.Authenticate(g.resolver, g.cfg.auth.apiKeyHeader),
	)
	r.With(admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
		Name:           bid.Name(),
		Max:            g.cfg.concurrencyMax,
		AcquireTimeout: g.cfg.concurrencyTimeout,
		Stats:          g.stats,
		Logger:         g.log,
	}), bid.Middleware()).Method(http.MethodPost, "/api/bid", forward)

	resourceID := func(r *http.Request) string { return chi.URLParam(r, "id") }
	resources := []struct {
		kind  string
		roles []domain.Role
	}{
		{"podcasts", []domain.Role{domain.RolePublisher, domain.RoleAdmin}},
		{"campaigns", []domain.Role{domain.RoleAdvertiser, domain.RoleAdmin}},
	}
	read := g.standardPipeline("read")
	for _, res := range resources {
		base := "/api/" + res.kind
		create := g.standardPipeline("create", admission.RequireRole(res.roles...))
		modify := g.standardPipeline("modify",
			admission.RequireRole(res.roles...),
			admission.RequireOwnership(res.kind, g.owners, resourceID),
		)

		r.With(read.Middleware()).Method(http.MethodGet, base, forward)
		r.With(read.Middleware()).Method(http.MethodGet, base+"/{id}", forward)
		r.With(create.Middleware()).Method(http.MethodPost, base, forward)
		r.With(modify.Middleware()).Method(http.MethodPut, base+"/{id}", forward)
		r.With(modify.Middleware()).Method(http.MethodDelete, base+"/{id}", forward)
	}

	admin := g.pipeline("admin",
		admission.Authenticate(g.resolver, ""),
		admission.RequireRole(domain.RoleAdmin),
	)
	ra := &rateAdmin{policies: g.policies(), log: g.log}
	r.With(admin.Middleware()).Get("/admin/ratelimit/{policy}/*", ra.status)
	r.With(admin.Middleware()).Delete("/admin/ratelimit/{policy}/*", ra.reset)

	return r
}

func newProxy(target *url.URL, log *zap.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		admission.WriteError(w, http.StatusBadGateway, "bad gateway")
	}
	return proxy
}

func serve(ctx context.Context, cfg config, log *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	g, err := newGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.close()
	g.start(ctx)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           g.routes(newProxy(target, log)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening", zap.String("addr", cfg.listenAddr), zap.Stringer("upstream", target), zap.Any("config", cfg.logSafe()))
	log.Info("bid fast path limit is per process",
		zap.Int("per_process_rps", cfg.bidRPS),
		zap.String("global_bound", fmt.Sprintf("~%d x process count", cfg.bidRPS)),
		zap.Int("global_max", cfg.bidGlobalMax))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
