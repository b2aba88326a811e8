package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/loykin/forgekeeper/internal/config"
	"github.com/loykin/forgekeeper/internal/console"
	"github.com/loykin/forgekeeper/internal/download"
	"github.com/loykin/forgekeeper/internal/env"
	"github.com/loykin/forgekeeper/internal/logger"
	"github.com/loykin/forgekeeper/internal/metrics"
	"github.com/loykin/forgekeeper/internal/pipeline"
	"github.com/loykin/forgekeeper/internal/server"
	"github.com/loykin/forgekeeper/internal/status"
	"github.com/loykin/forgekeeper/internal/supervisor"
	"github.com/loykin/forgekeeper/internal/transport"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the agent",
		Long: `Run the agent: serve the HTTP API, subscribe the NATS operation subjects
when configured and supervise the Forge server until SIGINT or SIGTERM.

Configuration is read from the optional TOML file and the environment
(API_HOST, BASE_DIR, PORT, NATS_URL, MQTT_BROKER, LOG_LEVEL, METRICS_LISTEN).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				flags.ConfigPath = args[0]
			}
			return runServe(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "override [server].listen")
	cmd.Flags().StringVar(&flags.BaseDir, "base-dir", "", "override base_dir")
	return cmd
}

func loadServeConfig(flags *ServeFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if flags.Listen != "" {
		cfg.Server.Listen = flags.Listen
	}
	if flags.BaseDir != "" {
		if cfg.BaseDir, err = config.ResolveBaseDir(flags.BaseDir); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(flags *ServeFlags) error {
	cfg, err := loadServeConfig(flags)
	if err != nil {
		return err
	}
	log, logCloser := logger.New(cfg.Log)
	defer func() { _ = logCloser.Close() }()

	a, err := newAgent(cfg, log)
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		a.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err = <-a.errCh:
		log.Error("http server failed", "error", err)
	}
	a.shutdown()
	return err
}

// agent owns every long-lived component started by serve.
type agent struct {
	cfg *config.Config
	log *slog.Logger

	svc       *pipeline.Service
	sampler   *metrics.Sampler
	http      *http.Server
	metricsSv *http.Server
	nc        *nats.Conn
	nats      *transport.NATS
	mq        mqtt.Client
	closers   []io.Closer

	errCh      chan error
	stopSample context.CancelFunc
}

func newAgent(cfg *config.Config, log *slog.Logger) (*agent, error) {
	a := &agent{cfg: cfg, log: log, errCh: make(chan error, 2)}

	vars, err := env.Parse(cfg.Process.Env)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(supervisor.Options{StopCommand: cfg.Process.StopCommand, Logger: log})

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		a.sampler = metrics.NewSampler(cfg.Metrics.SampleInterval, func() int32 {
			if h := sup.Current(); h != nil {
				return int32(h.PID)
			}
			return 0
		}, log)
		if err := a.sampler.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register process metrics", "error", err)
		}
	}

	sinks, err := a.consoleSinks()
	if err != nil {
		a.closeAll()
		return nil, err
	}

	a.svc = pipeline.NewService(pipeline.Options{
		BaseDir:    cfg.BaseDir,
		JavaPath:   cfg.Process.JavaPath,
		Prompts:    cfg.Process.Prompts,
		Env:        vars,
		Supervisor: sup,
		Notifier: status.NewReporter(status.Config{
			APIHost:  cfg.APIHost,
			Timeout:  cfg.Report.Timeout,
			RetryMax: cfg.Report.RetryMax,
		}, log),
		Downloader: download.New(download.Config{
			APIHost:  cfg.APIHost,
			Timeout:  cfg.Download.Timeout,
			RetryMax: cfg.Download.RetryMax,
		}, log),
		Sinks:  sinks,
		Logger: log,
	})

	if a.nc != nil {
		a.nats = transport.NewNATS(a.nc, cfg.NATS.SubjectPrefix, a.svc, log)
	}

	opts := []server.Option{}
	if a.sampler != nil {
		opts = append(opts, server.WithSampler(a.sampler))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		opts = append(opts, server.WithMetrics())
	}
	a.http = server.NewServer(cfg.Server.Listen, server.NewRouter(a.svc, cfg.Server.BasePath, opts...))
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.metricsSv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	return a, nil
}

// consoleSinks builds the console fan-out. The NATS connection is shared
// with the operation transport.
func (a *agent) consoleSinks() ([]console.Sink, error) {
	cfg := a.cfg
	sinks := []console.Sink{console.LogSink{Log: a.log}}

	if cfg.Process.ConsoleLog != "" {
		fc := cfg.Log.File
		fc.Path = cfg.Process.ConsoleLog
		fs := console.NewFileSink(fc.Writer())
		a.closers = append(a.closers, fs)
		sinks = append(sinks, fs)
	}

	if cfg.NATS.URL != "" {
		nc, err := transport.Connect(cfg.NATS.URL, "forgekeeper", a.log)
		if err != nil {
			return nil, err
		}
		a.nc = nc
		if cfg.NATS.ConsoleSubject != "" {
			sinks = append(sinks, console.NewNATSSink(nc, cfg.NATS.ConsoleSubject, a.log))
		}
	}

	if cfg.MQTT.Broker != "" {
		mq, err := console.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, 10*time.Second)
		if err != nil {
			return nil, err
		}
		a.mq = mq
		sinks = append(sinks, console.NewMQTTSink(mq, cfg.MQTT.Topic, cfg.MQTT.QoS, a.log))
	}
	return sinks, nil
}

func (a *agent) start() error {
	if a.nats != nil {
		if err := a.nats.Start(); err != nil {
			return err
		}
	}
	if a.sampler != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopSample = cancel
		a.sampler.Start(ctx)
	}
	a.serve(a.http)
	if a.metricsSv != nil {
		a.serve(a.metricsSv)
	}
	a.log.Info("forgekeeper started", "listen", a.cfg.Server.Listen, "base_path", a.cfg.Server.BasePath,
		"base_dir", a.cfg.BaseDir, "nats", a.cfg.NATS.URL != "", "mqtt", a.cfg.MQTT.Broker != "")
	return nil
}

func (a *agent) serve(srv *http.Server) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
	}()
}

// shutdown stops intake first, then tears the pipelines and the server
// process down, and finally releases connections and files.
func (a *agent) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.nats != nil {
		a.nats.Stop()
	}
	if a.http != nil {
		_ = a.http.Shutdown(ctx)
	}
	if a.svc != nil {
		if err := a.svc.Shutdown(ctx); err != nil {
			a.log.Warn("shutdown incomplete", "error", err)
		}
	}
	if a.stopSample != nil {
		a.stopSample()
		a.sampler.Stop()
	}
	if a.metricsSv != nil {
		_ = a.metricsSv.Shutdown(ctx)
	}
	a.closeAll()
}

func (a *agent) closeAll() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
		a.nc = nil
	}
	if a.mq != nil {
		a.mq.Disconnect(250)
		a.mq = nil
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}
