// Command swarmctl is the operator-facing entry point, modeled on
// cmd/cliaimonitor/main.go's flag-based structure: ANSI-colored startup
// output, a background server with graceful shutdown, and a small set of
// subcommands dispatched off os.Args[1].
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brandista/swarm/internal/config"
	"github.com/brandista/swarm/internal/natsbridge"
	"github.com/brandista/swarm/internal/notifications"
	"github.com/brandista/swarm/internal/notifications/external"
	"github.com/brandista/swarm/internal/orchestrator"
	"github.com/brandista/swarm/internal/persistence"
	"github.com/brandista/swarm/internal/transport"
)

const (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("swarmctl - competitive-intelligence swarm orchestrator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  swarmctl run [-language fi|en|sv] [-config path] <url>")
	fmt.Println("  swarmctl serve [-addr :8088] [-config path]")
	fmt.Println("  swarmctl status [-addr http://localhost:8088] <run_id>")
}

func newOrchestrator() *orchestrator.Orchestrator {
	o := orchestrator.New()
	scout := newScoutAgent()
	if err := o.Register(scout.Base, scout); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register built-in scout agent: %v\n", err)
		os.Exit(1)
	}
	return o
}

// newFlagSet builds a FlagSet for one subcommand, exiting the process on
// parse error the same way flag.CommandLine does.
func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

// dirOf returns the directory a path's file should live in.
func dirOf(path string) string {
	return filepath.Dir(path)
}

func loadConfig(path string) config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		return config.Default()
	}
	return cfg
}

func buildNotifyRouter(cfg config.NotifyConfig) *notifications.Router {
	router := notifications.NewRouter(nil)
	if !cfg.Enabled {
		return router
	}
	if cfg.DiscordWebhook != "" {
		router.AddChannel(external.NewDiscordNotifier(external.DiscordConfig{WebhookURL: cfg.DiscordWebhook}))
	}
	if cfg.SlackWebhook != "" {
		router.AddChannel(external.NewSlackNotifier(external.SlackConfig{WebhookURL: cfg.SlackWebhook}))
	}
	return router
}

// cmdRun executes a single analysis run to completion and prints the
// resulting report, without starting the HTTP/WS transport.
func cmdRun(args []string) {
	fs := newFlagSet("run")
	language := fs.String("language", "en", "analysis language (fi, en, sv)")
	configPath := fs.String("config", "", "optional YAML config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: swarmctl run [flags] <url>")
		os.Exit(1)
	}
	url := fs.Arg(0)
	cfg := loadConfig(*configPath)

	fmt.Print(colorGreen)
	fmt.Printf("  Running analysis for %s\n", url)
	fmt.Print(colorReset)

	o := newOrchestrator()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Limits().TotalTimeout+10*time.Second)
	defer cancel()

	result, err := o.RunAnalysis(ctx, orchestrator.Request{URL: url, Language: *language})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

// cmdServe starts the HTTP/WS transport, backed by persistence and
// optionally an embedded NATS bridge and external notification channels.
func cmdServe(args []string) {
	fs := newFlagSet("serve")
	addr := fs.String("addr", "", "listen address, overrides config server.addr")
	configPath := fs.String("config", "", "optional YAML config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := os.MkdirAll(dirOf(cfg.SQLite.Path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	store, err := persistence.Open(cfg.SQLite.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open run store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var bridge *natsbridge.Bridge
	if cfg.Nats.Enabled {
		if cfg.Nats.URL != "" {
			bridge, err = natsbridge.Connect(cfg.Nats.URL)
		} else {
			bridge, err = natsbridge.StartEmbedded(cfg.Nats.EmbeddedPort)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: nats bridge disabled: %v\n", err)
			bridge = nil
		} else {
			defer bridge.Close()
			fmt.Printf("  NATS bridge connected at %s\n", bridge.URL())
		}
	}

	notifyRouter := buildNotifyRouter(cfg.Notify)
	notifyMgr := notifications.NewDefaultManager()

	o := newOrchestrator()
	srv := transport.NewServer(cfg.Server.Addr, o, store)

	srv.WireNotifications(notifyRouter, notifyMgr)
	if bridge != nil {
		srv.WireNatsBridge(bridge)
	}

	boundAddr, err := srv.Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(colorGreen)
	fmt.Printf("  swarmctl listening on %s\n", boundAddr)
	fmt.Print(colorReset)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown

	fmt.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
}

// cmdStatus queries a running serve instance's HTTP API for a run's state.
func cmdStatus(args []string) {
	fs := newFlagSet("status")
	addr := fs.String("addr", "http://localhost:8088", "base URL of a running swarmctl serve instance")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: swarmctl status [-addr http://host:port] <run_id>")
		os.Exit(1)
	}
	runID := fs.Arg(0)

	resp, err := http.Get(*addr + "/runs/" + runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to decode response: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
