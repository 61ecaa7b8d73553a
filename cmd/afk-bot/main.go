package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coolboyplayz111-restarts/afk-bot/internal/audit"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/bot"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/config"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/observerhub"
	"github.com/coolboyplayz111-restarts/afk-bot/internal/worldclient"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "", "path to config.yaml (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[afk-bot] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	listen := cfg.ListenAddr
	if strings.TrimSpace(*addr) != "" {
		listen = strings.TrimSpace(*addr)
	}

	_ = os.MkdirAll(cfg.DataDir, 0o755)

	store, err := audit.OpenSQLite(filepath.Join(cfg.DataDir, cfg.AuditDB))
	if err != nil {
		logger.Fatalf("open audit db: %v", err)
	}
	defer store.Close()

	var viewers bot.ViewerFactory
	if cfg.ViewerEnabled {
		viewers = func(agentID string) (bot.Viewer, error) {
			return audit.NewRecorder(cfg.DataDir, agentID)
		}
	}

	timings := bot.Timings{
		ReconnectInterval: time.Duration(cfg.ReconnectIntervalMs) * time.Millisecond,
		WanderMin:         time.Duration(cfg.WanderMinMs) * time.Millisecond,
		WanderMax:         time.Duration(cfg.WanderMaxMs) * time.Millisecond,
		RestInterval:      time.Duration(cfg.RestIntervalMs) * time.Millisecond,
		AvoidInterval:     time.Duration(cfg.AvoidIntervalMs) * time.Millisecond,
	}

	bcast := bot.NewBroadcaster(logger, time.Duration(cfg.BroadcastIntervalMs)*time.Millisecond)
	reg := bot.NewRegistry(bot.Options{
		Logger:      logger,
		Dial:        worldclient.Dial,
		Timings:     timings,
		ThreatKinds: cfg.ThreatKinds,
		Viewers:     viewers,
		Audit:       store,
		Broadcaster: bcast,
	})
	defer reg.Close()
	arb := bot.NewArbiter(reg)

	ctx, cancel := signalContext()
	defer cancel()

	go bcast.Run(ctx)

	for _, a := range cfg.Agents {
		if !a.Enabled {
			continue
		}
		target := worldclient.Target{Host: a.Host, Port: a.Port, Username: a.Username}
		if _, err := reg.Create(target, ""); err != nil {
			logger.Printf("boot agent %s@%s:%d: %v", a.Username, a.Host, a.Port, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		var connected, controlled int
		records := reg.List()
		for _, rec := range records {
			if rec.State() == bot.Connected {
				connected++
			}
			if rec.Controller() != "" {
				controlled++
			}
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP afkbot_agents Registered agents.\n")
		fmt.Fprintf(rw, "# TYPE afkbot_agents gauge\n")
		fmt.Fprintf(rw, "afkbot_agents %d\n", len(records))

		fmt.Fprintf(rw, "# HELP afkbot_agents_connected Agents with a live session.\n")
		fmt.Fprintf(rw, "# TYPE afkbot_agents_connected gauge\n")
		fmt.Fprintf(rw, "afkbot_agents_connected %d\n", connected)

		fmt.Fprintf(rw, "# HELP afkbot_agents_controlled Agents under manual control.\n")
		fmt.Fprintf(rw, "# TYPE afkbot_agents_controlled gauge\n")
		fmt.Fprintf(rw, "afkbot_agents_controlled %d\n", controlled)
	})
	mux.HandleFunc("/v1/observer/ws", observerhub.NewServer(reg, arb, bcast, logger).WSHandler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
