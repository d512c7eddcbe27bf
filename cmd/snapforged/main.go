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
	"syscall"
	"time"

	"github.com/snapforge/snapforged/internal/config"
	"github.com/snapforge/snapforged/internal/control"
	"github.com/snapforge/snapforged/internal/ctlserver"
	"github.com/snapforge/snapforged/internal/discovery"
	"github.com/snapforge/snapforged/internal/engine"
	"github.com/snapforge/snapforged/internal/metrics"
	"github.com/snapforge/snapforged/internal/output"
	"github.com/snapforge/snapforged/internal/session"
)

var (
	configPath  = flag.String("config", getDefaultConfigPath(), "Path to configuration file")
	host        = flag.String("host", "", "Audio server host (default: preferred server from config, else mDNS discovery)")
	port        = flag.Int("port", 0, "Audio server stream port (default: 1704)")
	clientName  = flag.String("name", "", "Override client name sent to the server")
	latencyMs   = flag.Int("latency", 0, "Extra client latency in milliseconds")
	listServers = flag.Bool("list-servers", false, "List audio servers found via mDNS and exit")
	ctlAddr     = flag.String("ctl-addr", "", "Control server listen address (overrides config)")
	metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (overrides config; empty disables)")
	noAudio     = flag.Bool("no-audio", false, "Render without an audio device (headless)")
	daemonMode  = flag.Bool("daemon", false, "Run the control server daemon (otherwise connect and play until interrupted)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Handle list-servers command
	if *listServers {
		if err := listAvailableServers(cfg); err != nil {
			log.Fatalf("Failed to list servers: %v", err)
		}
		return
	}

	// Apply flag overrides
	if *clientName != "" {
		cfg.Client.Name = *clientName
	}
	if *latencyMs != 0 {
		cfg.Playback.LatencyMs = *latencyMs
	}
	if *noAudio {
		cfg.Playback.NoAudio = true
	}
	if *ctlAddr != "" {
		cfg.Control.ListenAddr = *ctlAddr
	}
	if *metricsAddr != "" {
		cfg.Control.MetricsAddr = *metricsAddr
	}

	met := metrics.New()
	eng := engine.New(engine.Options{
		Factory:     sessionFactory(cfg),
		Metrics:     met,
		StopTimeout: time.Duration(cfg.Engine.StopTimeoutMs) * time.Millisecond,
		ZombieGrace: time.Duration(cfg.Engine.ZombieGraceMs) * time.Millisecond,
	})
	eng.SetLatency(cfg.Playback.LatencyMs)

	if cfg.Control.MetricsAddr != "" {
		go serveMetrics(cfg.Control.MetricsAddr, met)
	}

	if *daemonMode {
		runDaemon(cfg, eng)
		return
	}

	runDirect(cfg, eng)
}

// sessionFactory builds one fresh session per engine handle.
func sessionFactory(cfg *config.Config) engine.SessionFactory {
	return func(events session.Events) engine.Runner {
		var out session.Output
		if cfg.Playback.NoAudio {
			out = output.NewStub()
		} else {
			dev, err := output.NewDevice()
			if err != nil {
				log.Printf("No audio device available, rendering silently: %v", err)
				out = output.NewStub()
			} else {
				out = dev
			}
		}

		return session.New(session.Config{
			Name:     cfg.Client.Name,
			ID:       cfg.Client.ID,
			Instance: cfg.Client.Instance,
			BufferMs: cfg.Playback.BufferMs,
		}, out, events)
	}
}

// resolveServer picks the target server from flags, config, then discovery.
func resolveServer(cfg *config.Config) (string, int, error) {
	if *host != "" {
		p := *port
		if p == 0 {
			p = 1704
		}
		return *host, p, nil
	}

	if srv := cfg.GetPreferredServer(); srv != nil {
		p := srv.Port
		if p == 0 {
			p = 1704
		}
		return srv.Host, p, nil
	}

	log.Printf("No server configured, trying mDNS discovery...")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	found, err := discovery.First(ctx)
	if err != nil {
		return "", 0, err
	}
	log.Printf("Discovered server %s at %s:%d", found.Name, found.Host, found.Port)
	return found.Host, found.Port, nil
}

// runDaemon runs the control server daemon
func runDaemon(cfg *config.Config, eng *engine.Engine) {
	server := ctlserver.NewServer(cfg.Control.ListenAddr, eng)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start control server: %v", err)
	}
	defer server.Stop()

	// Idle clients see state changes as "player" and volume as "mixer"
	eng.SetStateCallback(func(engine.State) {
		server.NotifySubsystemChange("player")
	})
	eng.SetSettingsCallback(func(int, bool, int) {
		server.NotifySubsystemChange("mixer")
	})

	// Auto-connect when a server is known or discoverable
	if h, p, err := resolveServer(cfg); err == nil {
		eng.Start(h, p)

		// Mirror volume changes upstream over the server's control channel
		if ctl, err := control.Dial(h, control.DefaultPort); err == nil {
			defer ctl.Close()
			server.SetPusher(ctl, cfg.Client.ID)
		} else {
			log.Printf("Server control channel unavailable: %v", err)
		}
	} else {
		log.Printf("Not connecting yet: %v", err)
	}

	log.Printf("snapforged running in daemon mode")
	log.Printf("Connect control clients to %s", cfg.Control.ListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Printf("\nShutting down...")

	if !eng.Close(10 * time.Second) {
		log.Printf("Warning: some session teardowns did not finish")
	}
}

// runDirect connects to one server and plays until interrupted
func runDirect(cfg *config.Config, eng *engine.Engine) {
	h, p, err := resolveServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No server to connect to: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s --host <server> [--port 1704]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s --daemon\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	log.Printf("Connecting to %s:%d...", h, p)
	eng.Start(h, p)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Printf("\nShutting down...")

	if !eng.Close(10 * time.Second) {
		log.Printf("Warning: some session teardowns did not finish")
	}
}

func serveMetrics(addr string, met *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	log.Printf("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server error: %v", err)
	}
}

func getDefaultConfigPath() string {
	// Check common locations
	locations := []string{
		"./snapforged.yaml",
		"./config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "snapforged", "config.yaml"),
		"/etc/snapforged/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// Default to first location if none exist
	return locations[0]
}

func listAvailableServers(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	found, err := discovery.Browse(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nFound %d audio server(s):\n\n", len(found))
	for i, srv := range found {
		fmt.Printf("%d. %s\n", i+1, srv.Name)
		fmt.Printf("   Host: %s\n", srv.Host)
		fmt.Printf("   Port: %d\n", srv.Port)
		fmt.Printf("\n   To use this server, run:\n")
		fmt.Printf("     %s --host %s --port %d\n", os.Args[0], srv.Host, srv.Port)
		fmt.Println()
	}

	// Remember discovered servers in the config
	added := 0
	for _, srv := range found {
		if cfg.GetServer(srv.Name) == nil {
			cfg.AddServer(config.Server{Name: srv.Name, Host: srv.Host, Port: srv.Port})
			added++
		}
	}
	if added > 0 {
		if err := config.SaveConfig(*configPath, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Saved %d server(s) to %s\n", added, *configPath)
	}

	return nil
}
