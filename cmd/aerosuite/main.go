// Command aerosuite is the platform binary. Run without WORKER_INDEX it is
// the cluster master: it forks WORKER_COUNT copies of itself, supervises
// restarts, samples worker load for autoscaling, and drains the fleet on
// SIGTERM. With WORKER_INDEX set (by the master) it is a worker: it owns an
// HTTP listener and shares nothing with its siblings except the database,
// cache, and session stores.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"

	"github.com/aerosuite/platform/infrastructure/state"
	"github.com/aerosuite/platform/internal/api"
	"github.com/aerosuite/platform/internal/autoscaler"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/cluster"
	"github.com/aerosuite/platform/internal/config"
	"github.com/aerosuite/platform/internal/domain/component"
	"github.com/aerosuite/platform/internal/domain/customer"
	"github.com/aerosuite/platform/internal/domain/inspection"
	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/health"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/logging"
	"github.com/aerosuite/platform/internal/metrics"
	"github.com/aerosuite/platform/internal/migrations"
	"github.com/aerosuite/platform/internal/ml/drift"
	"github.com/aerosuite/platform/internal/ml/inference"
	"github.com/aerosuite/platform/internal/ml/perftracker"
	"github.com/aerosuite/platform/internal/ml/registry"
	"github.com/aerosuite/platform/internal/obslog"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/services"
	"github.com/aerosuite/platform/internal/sessionstore"
	"github.com/aerosuite/platform/internal/workerpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if idx := os.Getenv("WORKER_INDEX"); idx != "" {
		os.Exit(runWorker(cfg, idx))
	}
	os.Exit(runMaster(cfg))
}

// --- master ---------------------------------------------------------------

func runMaster(cfg *config.Config) int {
	log := logging.New("aerosuite-master", cfg.Logging.Level, cfg.Logging.Format)

	self, err := os.Executable()
	if err != nil {
		log.WithContext(context.Background()).WithError(err).Error("resolving own binary path")
		return 1
	}

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := cluster.New(cluster.Config{
		Spec:         cluster.WorkerSpec{Command: self},
		Count:        cfg.Worker.Count,
		DrainTimeout: cfg.Shutdown.DrainTimeout,
		Alert: func(event string, slot int, detail string) {
			log.LogEvent(ctx, event, map[string]interface{}{"slot": slot, "detail": detail})
			bus.Publish(ctx, "cluster-supervisor", event, "", map[string]any{"slot": slot, "detail": detail})
		},
	})
	sup.Start(ctx)

	scaler := autoscaler.New(autoscaler.Config{
		Min:            cfg.Autoscale.Min,
		Max:            cfg.Autoscale.Max,
		UpperRPS:       cfg.Autoscale.UpperRPS,
		LowerRPS:       cfg.Autoscale.LowerRPS,
		UpperP95Ms:     cfg.Autoscale.UpperP95Ms,
		LowerP95Ms:     cfg.Autoscale.LowerP95Ms,
		SustainTicks:   cfg.Autoscale.SustainTicks,
		CronSpec:       cfg.Autoscale.SampleCron,
		InitialWorkers: cfg.Worker.Count,
	}, newFleetSampler(cfg.Server.Port, cfg.Worker.Count), bus, log, func(intent autoscaler.Intent) {
		sup.Resize(ctx, intent.Desired)
	})
	if err := scaler.Start(); err != nil {
		log.WithContext(ctx).WithError(err).Error("starting autoscaling controller")
		sup.Drain()
		return 2
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	for sig := range signals {
		switch sig {
		case syscall.SIGUSR2:
			log.LogEvent(ctx, "cluster.resize_requested", map[string]interface{}{"desired": scaler.Desired()})
			sup.Resize(ctx, scaler.Desired())
		default:
			log.LogEvent(ctx, "cluster.draining", map[string]interface{}{"signal": sig.String()})
			scaler.Stop()
			sup.Drain()
			return 0
		}
	}
	return 0
}

// fleetSampler scrapes each worker's detailed health endpoint and averages
// the per-worker traffic sample for the autoscaling controller.
type fleetSampler struct {
	basePort int
	count    int
	client   *http.Client
}

func newFleetSampler(basePort, count int) *fleetSampler {
	return &fleetSampler{
		basePort: basePort,
		count:    count,
		client:   httputil.CopyHTTPClientWithTimeout(nil, 2*time.Second, false),
	}
}

func (f *fleetSampler) Snapshot() autoscaler.Sample {
	var sample autoscaler.Sample
	reachable := 0
	for i := 0; i < f.count; i++ {
		url := fmt.Sprintf("http://127.0.0.1:%d/health/detailed", f.basePort+i)
		resp, err := f.client.Get(url)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			continue
		}

		traffic := gjson.GetBytes(body, "traffic")
		if !traffic.Exists() {
			continue
		}
		reachable++
		sample.RPS += traffic.Get("rps").Float()
		if p95 := traffic.Get("p95Ms").Float(); p95 > sample.P95Ms {
			sample.P95Ms = p95
		}
	}
	if reachable > 0 {
		// Thresholds are per worker; report the mean worker rate and the
		// worst worker latency.
		sample.RPS /= float64(reachable)
	}
	return sample
}

// --- worker ---------------------------------------------------------------

func runWorker(cfg *config.Config, workerIndex string) int {
	idx, _ := strconv.Atoi(workerIndex)
	port := cfg.Server.Port + idx

	log := logging.New("aerosuite-worker", cfg.Logging.Level, cfg.Logging.Format)
	mlLog := obslog.Must(cfg.Logging.Level, "json")
	m := metrics.New("aerosuite")

	ctx := logging.WithWorkerID(context.Background(), workerIndex)

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.WithContext(ctx).WithError(err).Error("connecting to database")
		// The health gate below decides whether a missing database is fatal;
		// in production it always is.
		if cfg.Server.Env == "production" {
			return 1
		}
	}
	if db != nil {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(db.DB); err != nil {
				log.WithContext(ctx).WithError(err).Error("applying migrations")
				return 1
			}
		}
	}

	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Cache.URL); err == nil {
		redisClient = redis.NewClient(opts)
	} else {
		log.WithContext(ctx).WithError(err).Warn("cache url unparseable, running local-only cache")
	}

	cacheOpts := []cacheengine.Option{
		cacheengine.WithObserver(m.RecordCacheHit, m.RecordCacheMiss),
	}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, cacheengine.WithSharedStore(redisClient))
	}
	cache := cacheengine.New(cacheOpts...)

	var sessionBackend state.PersistenceBackend
	if redisClient != nil {
		sessionBackend = state.NewRedisBackend(redisClient, time.Duration(cfg.Session.TTLSeconds)*time.Second)
	}
	sessions := sessionstore.New(sessionstore.Config{
		AbsoluteTTL: time.Duration(cfg.Session.TTLSeconds) * time.Second,
		IdleTTL:     time.Duration(cfg.Session.IdleSeconds) * time.Second,
		Backend:     sessionBackend,
	})

	bus := eventbus.New()
	bus.Subscribe("", func(evtCtx context.Context, evt eventbus.Event) {
		log.LogEvent(evtCtx, evt.Type, map[string]interface{}{
			"aggregate_id": evt.AggregateID,
			"publisher":    evt.PublisherID,
			"sequence":     evt.Sequence,
		})
	})

	pool := workerpool.New(workerpool.Config{
		Size:       cfg.Worker.PoolSize,
		QueueDepth: cfg.Worker.QueueDepth,
	})
	defer pool.Shutdown()

	newStore := func(table string) repository.Store {
		if db != nil {
			return repository.NewPostgresStore(db, table)
		}
		return repository.NewMemoryStore()
	}

	inspRepo := repository.New("inspections", newStore("inspections"), cache,
		repository.JSONCodec(func() *inspection.Inspection { return &inspection.Inspection{} }), log)
	compRepo := repository.New("components", newStore("components"), cache,
		repository.JSONCodec(func() *component.Component { return &component.Component{} }), log)
	custRepo := repository.New("customers", newStore("customers"), cache,
		repository.JSONCodec(func() *customer.Customer { return &customer.Customer{} }), log)

	customers := services.NewCustomerService(custRepo, bus)
	components := services.NewComponentService(compRepo, bus)
	inspections := services.NewInspectionService(inspRepo, bus, customers, nil)

	reg := registry.New(newStore("ml_models"), mlLog)
	perf := perftracker.New(perftracker.Config{}, prometheus.DefaultRegisterer)
	defer perf.Close()
	runtime := inference.New(inference.Config{
		MaxConcurrency: cfg.Inference.MaxConcurrency,
		DefaultTimeout: cfg.Inference.Timeout,
	}, inference.ScriptLoader{}, reg.GetProduction, mlLog,
		func(model string, latency time.Duration, success bool) {
			perf.TrackInference(model, float64(latency.Milliseconds()), success)
		})
	detector := drift.New(newStore("ml_baselines"), drift.Config{
		DefaultMethod: drift.Method(cfg.Drift.MethodDefault),
		Thresholds: drift.Thresholds{
			Low:    cfg.Drift.MedThreshold / 2,
			Medium: cfg.Drift.MedThreshold,
			High:   cfg.Drift.HighThreshold,
		},
		Pool: pool,
	}, mlLog)

	probe := health.New(log)
	if db != nil {
		probe.Register(health.DatabaseCheck(db))
	} else {
		probe.Register(health.Check{Name: "database", Critical: true, Run: func(context.Context) error {
			return fmt.Errorf("database not connected")
		}})
	}
	probe.Register(health.CacheCheck(cache))
	probe.Register(health.DiskCheck("/", 512<<20))
	if cfg.Backup.StatusFile != "" {
		probe.Register(health.BackupCheck(func(context.Context) (time.Time, error) {
			info, err := os.Stat(cfg.Backup.StatusFile)
			if err != nil {
				return time.Time{}, err
			}
			return info.ModTime(), nil
		}, cfg.Backup.MaxAge))
	}
	if err := probe.Gate(ctx, cfg.Server.Env); err != nil {
		log.WithContext(ctx).WithError(err).Error("startup health gate failed")
		return 1
	}
	if err := probe.StartPeriodic("@every 30s"); err != nil {
		log.WithContext(ctx).WithError(err).Error("starting health refresh")
		return 2
	}
	defer probe.Stop()

	tracker := autoscaler.NewRequestTracker(10 * time.Second)

	srv := api.New(api.Deps{
		Log:         log,
		Metrics:     m,
		Inspections: inspections,
		Components:  components,
		Customers:   customers,
		Sessions:    sessions,
		Tokens:      sessionstore.NewTokenIssuer(cfg.Session.SigningSecret, 0),
		Cache:       cache,
		Probe:       probe,
		Tracker:     tracker,
		Pool:        pool,
		Registry:    reg,
		Runtime:     runtime,
		Perf:        perf,
		Drift:       detector,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	log.LogEvent(ctx, "worker.listening", map[string]interface{}{"port": port, "index": idx})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		log.WithContext(ctx).WithError(err).Error("http server failed")
		return 2
	case sig := <-signals:
		log.LogEvent(ctx, "worker.draining", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.DrainTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithContext(ctx).WithError(err).Warn("drain timeout exceeded, forcing close")
		_ = httpServer.Close()
	}
	return 0
}
