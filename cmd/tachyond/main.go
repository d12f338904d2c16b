// Command tachyond runs the tachyon storage engine as a standalone server:
// an OTLP gRPC ingest endpoint, the Prometheus-compatible HTTP query API, and
// a metrics endpoint.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/ingest"
	"github.com/arloliu/tachyon/query"
	"github.com/arloliu/tachyon/storage"
)

type config struct {
	SealThreshold         int    `yaml:"seal_threshold"`
	OutOfOrderToleranceMs int64  `yaml:"out_of_order_tolerance_ms"`
	LookbackMs            int64  `yaml:"lookback_ms"`
	CompactThreshold      int    `yaml:"compact_threshold"`
	Codecs                string `yaml:"codecs"`
}

func defaultConfig() config {
	return config{
		SealThreshold:    storage.DefaultSealThreshold,
		LookbackMs:       query.DefaultLookbackMs,
		CompactThreshold: storage.DefaultCompactThreshold,
		Codecs:           "compressed",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

func blockCodecs(name string) (block.Codecs, error) {
	switch name {
	case "raw":
		return block.DefaultCodecs(), nil
	case "compressed":
		return block.CompressedCodecs(), nil
	default:
		return block.Codecs{}, fmt.Errorf("unknown codecs profile %q", name)
	}
}

func main() {
	var (
		listenAddress     = kingpin.Flag("web.listen-address", "Address for the HTTP query API and metrics.").Default(":9201").String()
		otlpListenAddress = kingpin.Flag("otlp.listen-address", "Address for the OTLP gRPC ingest endpoint.").Default(":4317").String()
		dataDir           = kingpin.Flag("storage.data-dir", "Directory sealed blocks are persisted into.").Default("data").String()
		configFile        = kingpin.Flag("config.file", "Optional YAML configuration file.").Default("").String()
		compactInterval   = kingpin.Flag("storage.compact-interval", "Interval between background compactions.").Default("5m").Duration()
		logLevel          = kingpin.Flag("log.level", "Log level: debug, info, warn, error.").Default("info").Enum("debug", "info", "warn", "error")
	)
	kingpin.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))

	cfg, err := loadConfig(*configFile)
	if err != nil {
		level.Error(logger).Log("msg", "load config", "err", err)
		os.Exit(1)
	}

	codecs, err := blockCodecs(cfg.Codecs)
	if err != nil {
		level.Error(logger).Log("msg", "invalid config", "err", err)
		os.Exit(1)
	}

	sink, err := storage.NewFileSink(*dataDir)
	if err != nil {
		level.Error(logger).Log("msg", "create block sink", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := storage.NewEngine(
		storage.WithLogger(log.With(logger, "component", "storage")),
		storage.WithSealThreshold(cfg.SealThreshold),
		storage.WithOutOfOrderTolerance(cfg.OutOfOrderToleranceMs),
		storage.WithBlockCodecs(codecs),
		storage.WithCompactThreshold(cfg.CompactThreshold),
		storage.WithSink(sink),
		storage.WithRegistry(registry),
	)
	if err != nil {
		level.Error(logger).Log("msg", "create engine", "err", err)
		os.Exit(1)
	}

	adapter, err := query.NewAdapter(engine,
		query.WithLookback(cfg.LookbackMs),
		query.WithLogger(log.With(logger, "component", "query")),
	)
	if err != nil {
		level.Error(logger).Log("msg", "create query adapter", "err", err)
		os.Exit(1)
	}

	var g run.Group
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)

		g.Add(
			func() error {
				select {
				case <-term:
					level.Info(logger).Log("msg", "received SIGTERM, exiting gracefully...")
				case <-cancel:
				}
				return nil
			},
			func(error) {
				close(cancel)
			},
		)
	}
	{
		router := mux.NewRouter()
		query.NewAPI(adapter, log.With(logger, "component", "api")).Register(router)
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

		server := &http.Server{
			Addr:         *listenAddress,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		g.Add(
			func() error {
				level.Info(logger).Log("msg", "listening for HTTP queries", "addr", *listenAddress)
				return server.ListenAndServe()
			},
			func(error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			},
		)
	}
	{
		listener, err := net.Listen("tcp", *otlpListenAddress)
		if err != nil {
			level.Error(logger).Log("msg", "listen for OTLP", "addr", *otlpListenAddress, "err", err)
			os.Exit(1)
		}

		grpcServer := grpc.NewServer()
		pmetricotlp.RegisterGRPCServer(grpcServer, ingest.NewServer(engine, log.With(logger, "component", "ingest")))

		g.Add(
			func() error {
				level.Info(logger).Log("msg", "listening for OTLP ingest", "addr", *otlpListenAddress)
				return grpcServer.Serve(listener)
			},
			func(error) {
				grpcServer.GracefulStop()
			},
		)
	}
	{
		ctx, cancel := context.WithCancel(context.Background())

		g.Add(
			func() error {
				ticker := time.NewTicker(*compactInterval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := engine.Compact(ctx); err != nil {
							level.Warn(logger).Log("msg", "compaction failed", "err", err)
						}
					}
				}
			},
			func(error) {
				cancel()
			},
		)
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "run group exited", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Close(ctx); err != nil {
		level.Error(logger).Log("msg", "close engine", "err", err)
		os.Exit(1)
	}
}
