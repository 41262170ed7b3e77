// Lumora Core Server
//
// Standalone live-update compiler service: watches a project directory,
// lowers source edits to IR, and streams deltas to connected preview
// clients over websocket or raw TCP framed channels.
//
// Usage:
//
//	go run ./cmd/lumora-server                    # Defaults from env
//	go run ./cmd/lumora-server -watch ./app       # Watch a project dir
//	go build -o lumora-server ./cmd/lumora-server && ./lumora-server
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumora-labs/lumora-core/coreengine/compiler"
	"github.com/lumora-labs/lumora-core/coreengine/config"
	"github.com/lumora-labs/lumora-core/coreengine/live"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
	"github.com/lumora-labs/lumora-core/livebus"
)

// stdLogger implements the engine logger interfaces using standard log.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	watchDir := flag.String("watch", cfg.WatchDir, "project directory to watch")
	httpAddr := flag.String("addr", cfg.HTTPAddr, "websocket listener address")
	tcpAddr := flag.String("tcp", cfg.TCPAddr, "raw framed-channel listener address (empty disables)")
	flag.Parse()

	logger := &stdLogger{}
	logger.Info("lumora_core_starting",
		"version", "1.0.0",
		"addr", *httpAddr,
		"watch_dir", *watchDir,
	)

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer("lumora-core", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing_init_failed", "error", err.Error())
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	bus := livebus.New(logger)
	pipeline := compiler.New(compiler.Options{
		Workers:         cfg.Workers,
		CacheMaxEntries: cfg.CacheMaxEntries,
		CacheTTL:        cfg.CacheTTL(),
		DisableCache:    cfg.DisableCache,
	}, bus, logger)
	defer pipeline.Close()

	var validate live.TokenValidator
	if cfg.AuthToken != "" {
		want := cfg.AuthToken
		validate = func(token, deviceID string) bool { return token == want }
	}
	server := live.NewServer(live.Config{
		BatchWindow:    cfg.BatchWindow(),
		PingInterval:   cfg.PingInterval(),
		PongTimeout:    cfg.PongTimeout(),
		DeltaThreshold: cfg.DeltaThreshold,
	}, logger, validate, nil)

	// Compiled IRs fan out to every connected session.
	bus.Subscribe(livebus.TypeIRCompiled, func(ctx context.Context, event livebus.Event) error {
		compiled := event.(*livebus.IRCompiled)
		server.Broadcast(compiled.Doc, compiled.Immediate)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := compiler.NewWatcher(pipeline, logger, 0)
	go func() {
		if err := watcher.Watch(ctx, *watchDir); err != nil && ctx.Err() == nil {
			logger.Error("watch_failed", "error", err.Error())
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/live", server)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http_server_failed", "error", err.Error())
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil {
				logger.Warn("metrics_server_failed", "error", err.Error())
			}
		}()
	}

	if *tcpAddr != "" {
		ln, err := net.Listen("tcp", *tcpAddr)
		if err != nil {
			logger.Error("tcp_listen_failed", "addr", *tcpAddr, "error", err.Error())
		} else {
			go func() {
				if err := server.ListenTCP(ln); err != nil && ctx.Err() == nil {
					logger.Error("tcp_server_failed", "error", err.Error())
				}
			}()
			defer ln.Close()
		}
	}

	logger.Info("lumora_core_ready", "addr", *httpAddr, "metrics_addr", cfg.MetricsAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("lumora_core_stopping")
	cancel()
	server.Shutdown()
	_ = httpServer.Shutdown(context.Background())
}
