// Command server wires every component into a running aggregation
// process: ingestion, persistence, broadcast, historical query, the
// activity monitor, and the reference adapter, matching the teacher's
// cmd/feedsim/main.go wiring shape (context+signal handling, component
// construction, goroutine fan-out, mux registration, graceful shutdown).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/horviskoadrianko/aggr-server/internal/adapter/natsbus"
	"github.com/horviskoadrianko/aggr-server/internal/aggregate"
	"github.com/horviskoadrianko/aggr-server/internal/banlist"
	"github.com/horviskoadrianko/aggr-server/internal/broadcast"
	"github.com/horviskoadrianko/aggr-server/internal/config"
	"github.com/horviskoadrianko/aggr-server/internal/core"
	"github.com/horviskoadrianko/aggr-server/internal/diag"
	"github.com/horviskoadrianko/aggr-server/internal/httpapi"
	"github.com/horviskoadrianko/aggr-server/internal/ingest"
	"github.com/horviskoadrianko/aggr-server/internal/monitor"
	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/query"
	"github.com/horviskoadrianko/aggr-server/internal/registry"
	"github.com/horviskoadrianko/aggr-server/internal/simadapter"
	"github.com/horviskoadrianko/aggr-server/internal/storage/boltstore"
	"github.com/horviskoadrianko/aggr-server/internal/storage/filearchive"
	"github.com/horviskoadrianko/aggr-server/internal/storage/kafkastore"
	"github.com/horviskoadrianko/aggr-server/internal/storage/mongostore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	logger.Info().Msg("aggregation server starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	// The default registerer is what promhttp.Handler serves on /metrics.
	metrics := prometheus.DefaultRegisterer

	reg := registry.New(logger)
	chunk := persistence.NewChunk()
	agg := aggregate.New(logger)
	bc := broadcast.New(cfg.SendBufferSize, logger, metrics)

	mode := ingest.BroadcastImmediate
	switch {
	case !cfg.Broadcast:
		mode = ingest.BroadcastDisabled
	case cfg.BroadcastAggr:
		mode = ingest.BroadcastAggregated
	case cfg.BroadcastDebounce > 0:
		mode = ingest.BroadcastDebounced
	}
	// Without collection nothing drains the chunk, so the router gets none.
	var routerChunk *persistence.Chunk
	if cfg.Collect {
		routerChunk = chunk
	}
	router := ingest.NewRouter(reg, routerChunk, agg, bc, mode, logger, metrics)

	c := core.New(reg, router, bc, logger)

	switch mode {
	case ingest.BroadcastAggregated:
		go runAggregationTick(ctx, agg, bc)
	case ingest.BroadcastDebounced:
		go runDebounceTick(ctx, bc, cfg.BroadcastDebounce)
	}

	var primary persistence.Storage
	if cfg.Collect {
		storages, err := buildStorages(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("build storage drivers")
		}

		// cfg.Storage's first entry is primary for the API, regardless of
		// its format — an explicit operator choice, not a format guess.
		if len(storages) > 0 {
			primary = storages[0]
		}

		scheduler := persistence.NewScheduler(cfg.BackupInterval, chunk, storages, logger, nil, metrics)
		go scheduler.Run(ctx)
	} else {
		logger.Info().Msg("persistence disabled, running ingest/broadcast only")
	}

	sampler := diag.NewSampler()
	mon := monitor.New(reg, c, cfg.MonitorInterval, cfg.ReconnectionThreshold, logger, nil, sampler)
	go mon.Run(ctx)

	var bans *banlist.List
	if cfg.BanFilePath != "" {
		bans = banlist.New(cfg.BanFilePath, logger)
		stop := make(chan struct{})
		go bans.Watch(stop)
		go func() {
			<-ctx.Done()
			close(stop)
		}()
	}

	if cfg.NATSUrl != "" {
		bridge, err := natsbus.Connect(cfg.NATSUrl, "natsbus", c, logger)
		if err != nil {
			logger.Error().Err(err).Msg("connect natsbus")
		} else {
			c.RegisterController(bridge)
			defer bridge.Close()
		}
	}

	if len(cfg.Pairs) > 0 {
		sim := simadapter.New("sim", c, 250*time.Millisecond, 0, logger)
		c.RegisterController(sim)
		if err := sim.GetProductsAndConnect(cfg.Pairs); err != nil {
			logger.Error().Err(err).Msg("start reference adapter")
		}
		defer sim.Stop()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	wsHandler := broadcast.Handler(bc, upgrader, logger, func(client *broadcast.Client) {
		products := c.IndexedProducts()
		supportedPairs := make([]string, 0, len(products))
		for _, p := range products {
			supportedPairs = append(supportedPairs, p.Value)
		}
		bc.SendToClient(client, broadcast.Envelope{
			Type: broadcast.EventWelcome,
			Data: broadcast.WelcomeData{
				SupportedPairs: supportedPairs,
				Connections:    c.Exchanges(),
			},
		})
	})

	var queryHandler *query.Handler
	if primary != nil {
		queryHandler = query.New(primary, chunk, cfg.MaxFetchLength)
	}

	httpSrv := httpapi.New(httpapi.Config{
		EnableRateLimit:     cfg.EnableRateLimit,
		RateLimitTimeWindow: cfg.RateLimitTimeWindow,
		RateLimitMax:        cfg.RateLimitMax,
		Origin:              cfg.Origin,
		MetricsEnabled:      cfg.MetricsEnabled,
		APIEnabled:          cfg.API,
	}, queryHandler, bans, logger)

	mux := httpSrv.Mux(wsHandler, bc.ClientCount)

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("aggregation server stopped")
}

// runAggregationTick drains the Aggregator every 50ms: timeout-expired
// composites plus anything queued by a displacement seal, all on the same
// cadence rather than broadcasting displacement seals inline.
func runAggregationTick(ctx context.Context, agg *aggregate.Aggregator, bc *broadcast.Manager) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sealed := agg.Sweep(time.Now().UnixMilli()); len(sealed) > 0 {
				bc.BroadcastTrades(sealed)
			}
		}
	}
}

// runDebounceTick drains the debounced broadcast queue every
// cfg.BroadcastDebounce.
func runDebounceTick(ctx context.Context, bc *broadcast.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bc.DrainDebounced()
		}
	}
}

// buildStorages constructs and connects every driver named in
// cfg.Storage, in the order given.
func buildStorages(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]persistence.Storage, error) {
	var out []persistence.Storage
	for _, name := range cfg.Storage {
		var st persistence.Storage
		switch name {
		case "mongo":
			st = mongostore.New(cfg.MongoURI)
		case "bolt":
			st = boltstore.New(cfg.BoltPath, 0)
		case "kafka":
			st = kafkastore.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		case "filearchive":
			st = filearchive.New(cfg.ArchiveDir, cfg.ArchiveMaxGB, logger)
		default:
			logger.Warn().Str("driver", name).Msg("unknown storage driver, skipping")
			continue
		}
		if err := st.Connect(ctx); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
