package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"eufy-bridge/internal/archive"
	"eufy-bridge/internal/bridge"
	"eufy-bridge/internal/catalog"
	"eufy-bridge/internal/config"
	"eufy-bridge/internal/logging"
	"eufy-bridge/internal/metrics"
	"eufy-bridge/internal/notify"
	"eufy-bridge/internal/recorder"
	"eufy-bridge/internal/sink"
	"eufy-bridge/internal/status"
)

var log = logging.MustGetLogger("monitor")

var serviceAction string // "install", "uninstall", "start", "stop"

// --- SERVICE WRAPPER ---

// program implements the kardianos/service interface
type program struct {
	settings *config.Settings

	cancel  context.CancelFunc
	done    chan struct{}
	server  *http.Server
	bridge  *bridge.Bridge
	archive *archive.Archiver
	store   *catalog.Store
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	if err := p.setup(); err != nil {
		cancel()
		return err
	}
	go p.run(ctx)
	return nil
}

func (p *program) setup() error {
	cfg := p.settings

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	p.store = store

	var notifier archive.Notifier
	if cfg.Notify.WebhookURL != "" {
		hook, err := notify.NewWebhook(notify.WebhookConfig{URL: cfg.Notify.WebhookURL, Cooldown: cfg.Notify.Cooldown})
		if err != nil {
			return err
		}
		notifier = hook
	}
	p.archive = archive.New(store, notifier)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(&metrics.CatalogCollector{Source: store})
	m := metrics.New(registry)

	feed := status.NewFeed(32)
	go logUpdates(feed)

	p.bridge = bridge.New(bridge.Options{
		URL:            cfg.Hub.URL,
		SchemaVersion:  cfg.Hub.SchemaVersion,
		ReconnectDelay: cfg.Hub.ReconnectDelay,
		Recorder: recorder.Settings{
			RetryInterval: cfg.Recorder.RetryInterval,
			MaxRetries:    cfg.Recorder.MaxRetries,
			MaxDuration:   cfg.Recorder.MaxDuration,
			Dir:           cfg.Recorder.Dir,
			Prefix:        cfg.Recorder.Prefix,
			Container:     cfg.Recorder.Container,
		},
		Sinks:    sink.Encoder{Binary: cfg.Recorder.FFmpeg, CloseTimeout: cfg.Recorder.CloseTimeout},
		Notifier: feed,
		Archiver: p.archive,
		Metrics:  m,
	})

	if cfg.Metrics.Port != "" {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		p.server = &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Metrics.Port),
			Handler: mux,
		}
	}
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	if p.server != nil {
		go func() {
			log.Infof("metrics listening on %s", p.server.Addr)
			if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("HTTP Server error: %v", err)
			}
		}()
	}

	go p.archive.Run(ctx)
	log.Infof("recording to %s via %s", p.settings.Recorder.Dir, p.settings.Hub.URL)
	p.bridge.Run(ctx)

	// The bridge worker has exited, nothing submits anymore.
	p.archive.Close()
	if err := p.store.Close(); err != nil {
		log.Warningf("close catalog: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	log.Info("Stopping service...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			log.Warningf("Server forced to shutdown: %v", err)
		}
	}
	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
		log.Warning("bridge did not stop in time")
	}
	return nil
}

func logUpdates(feed *status.Feed) {
	updates, _ := feed.Subscribe()
	for u := range updates {
		switch u.Kind {
		case status.StatusText:
			log.Infof("status: %s", u.Text)
		case status.RecordingFlag:
			log.Infof("recording: %t", u.Active)
		}
	}
}

// --- COMMAND ---

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the motion recording bridge",
	Long: `Starts the long-running bridge: it listens for motion, records the camera
livestream and exposes Prometheus metrics. Can be installed as a system service.`,
	Run: func(cmd *cobra.Command, args []string) {
		svcConfig := &service.Config{
			Name:        "eufy-bridge",
			DisplayName: "Eufy Motion Recorder",
			Description: "Records Eufy camera livestreams on motion",
			// Arguments passed to the binary when run as a service
			Arguments: []string{"monitor"},
		}
		if cfgFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgFile)
		}

		var settings *config.Settings
		if serviceAction == "" || serviceAction == "install" {
			// Validate before installing so a broken config is caught early.
			settings = mustSettings()
		}
		prg := &program{settings: settings}

		s, err := service.New(prg, svcConfig)
		if err != nil {
			log.Fatal(err)
		}

		if serviceAction != "" {
			err = service.Control(s, serviceAction)
			if err != nil {
				log.Fatalf("Failed to %s service: %v", serviceAction, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		// Runs until the service manager or an interrupt stops it.
		logger, err := s.Logger(nil)
		if err != nil {
			log.Fatal(err)
		}
		if err = s.Run(); err != nil {
			_ = logger.Error(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
}
