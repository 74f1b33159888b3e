package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"

	"github.com/venkytv/iodevice-watch/internal/config"
	"github.com/venkytv/iodevice-watch/internal/device"
	"github.com/venkytv/iodevice-watch/internal/monitor"
	"github.com/venkytv/iodevice-watch/internal/notifier"
	"github.com/venkytv/iodevice-watch/pkg/heartbeat"
)

func main() {
	if err := config.LoadDotEnv(envDefault("DOTENV_FILE", ".env")); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	var (
		configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file (watched for changes)")
		statusAddr = flag.String("status-addr", "", "Listen address for HTTP status and metrics (empty to disable)")
		natsURL    = flag.String("nats-url", "", "NATS server URL for event fan-out and heartbeats")
		pollEvery  = flag.Duration("poll", 0, "How often to check devices")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, os.LookupEnv)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if flag.CommandLine.Changed("status-addr") {
		cfg.StatusAddr = *statusAddr
	}
	if flag.CommandLine.Changed("nats-url") {
		cfg.NATSURL = *natsURL
	}
	if flag.CommandLine.Changed("poll") {
		cfg.PollInterval = *pollEvery
	}
	if flag.CommandLine.Changed("debug") {
		cfg.Debug = *debug
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	fetcher := device.Client{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.Token,
		Client:  httpClient,
	}
	notify := notifier.Multi{notifier.Discord{
		WebhookURL: cfg.WebhookURL,
		Client:     httpClient,
	}}

	for _, key := range cfg.Shadowed {
		logger.Warn("config file overrides environment variable", "key", key)
	}

	var beacon monitor.Beacon
	if cfg.NATSURL != "" {
		nc, err := connectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("nats disabled, continuing with discord only", "err", err)
		} else {
			defer nc.Drain()
			notify = append(notify, notifier.NATS{Conn: nc, Prefix: cfg.NATSSubjectPrefix})
			beacon = heartbeat.NewPublisher(nc, "heartbeat")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := monitor.New(fetcher, notify, monitor.Config{
		DeviceIDs:        cfg.DeviceIDs,
		DigestInterval:   cfg.DigestInterval(),
		PollEvery:        cfg.PollInterval,
		RepeatEvery:      cfg.AlertRepeat,
		StatusAddr:       cfg.StatusAddr,
		Debug:            cfg.Debug,
		Logger:           logger,
		Metrics:          monitor.NewMetrics(reg),
		Gatherer:         reg,
		Beacon:           beacon,
		HeartbeatSubject: cfg.HeartbeatSubject,
	})

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, os.LookupEnv, logger, func(updated *config.Config) {
				m.Reload(updated.DeviceIDs, updated.DigestInterval())
			})
			if err != nil {
				logger.Error("config watcher stopped", "err", err)
			}
		}()
	}

	if err := m.Start(ctx); err != nil {
		log.Fatalf("monitor failed: %v", err)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connectNATS returns at once, even when the server is unreachable; the
// client keeps reconnecting in the background and buffers publishes until it
// gets through.
func connectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("iodevice-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
				return
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			logger.Info("nats connected")
		}),
	)
}
