// Command chatsync is the interactive terminal chat client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aeolun/chatsync/pkg/client"
	"github.com/aeolun/chatsync/pkg/client/ui"
	"github.com/aeolun/chatsync/pkg/config"
	"github.com/aeolun/chatsync/pkg/restapi"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", "~/.chatsync/config.toml", "Path to config file")
	server := flag.String("server", "", "Server base URL (overrides config)")
	token := flag.String("token", "", "Session token (overrides config and CHATSYNC_SERVER_SESSION_COOKIE)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("chatsync %s\n", Version)
		return
	}

	if err := run(*configPath, *server, *token); err != nil {
		fmt.Fprintf(os.Stderr, "chatsync: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, server, token string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if server != "" {
		cfg.Server.BaseURL = server
	}
	if token != "" {
		cfg.Server.SessionCookie = token
	}
	if cfg.Server.SessionCookie == "" {
		return errors.New("no session token: log in through the web client and pass -token")
	}

	// The terminal belongs to bubbletea, so logs go to a file
	logger, closeLog, err := openLog(cfg.Client.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Printf("Starting chatsync %s against %s", Version, cfg.Server.BaseURL)

	state, err := client.OpenState(cfg.Client.StatePath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer state.Close()

	api, err := restapi.NewClient(cfg.Server.BaseURL, cfg.Server.SessionCookie)
	if err != nil {
		return err
	}
	api.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.RequestTimeout())
	self, err := api.CurrentUser(ctx)
	cancel()
	if err != nil {
		if errors.Is(err, restapi.ErrUnauthorized) {
			return errors.New("session expired or invalid, please log in again")
		}
		return fmt.Errorf("failed to identify session: %w", err)
	}
	logger.Printf("Authenticated as %s", self)

	registry := prometheus.NewRegistry()
	metrics := client.NewMetrics(registry)
	if cfg.Client.MetricsAddr != "" {
		go serveMetrics(cfg.Client.MetricsAddr, registry, logger)
	}

	renderer := ui.NewProgramRenderer()
	renderer.SetLogger(logger)

	opts := client.Options{
		Self:         self,
		Endpoint:     api.EndpointFor(cfg.Server.WSPath),
		Dialer:       client.NewWebSocketDialer(api.CookieHeader(), cfg.Timing.RequestTimeout()),
		Renderer:     renderer,
		Collaborator: api,
		State:        state,
		Metrics:      metrics,
		Timing: client.Timing{
			ReconnectDelay:     cfg.Timing.ReconnectDelay(),
			TypingPingInterval: cfg.Timing.TypingPingInterval(),
			TypingIdle:         cfg.Timing.TypingIdle(),
			TypingExpiry:       cfg.Timing.TypingExpiry(),
			RequestTimeout:     cfg.Timing.RequestTimeout(),
		},
		Logger: logger,
	}
	if cfg.Client.Notifications {
		opts.Notifier = client.NewDesktopNotifier("chatsync", "")
	}

	chat, err := client.New(opts)
	if err != nil {
		return err
	}

	model := ui.NewModel(chat, self, logger)
	program := tea.NewProgram(model, tea.WithAltScreen())

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	renderer.Attach(runCtx, program.Send)

	clientDone := make(chan error, 1)
	go func() { clientDone <- chat.Run(runCtx) }()

	final, err := program.Run()
	stop()
	if clientErr := <-clientDone; clientErr != nil {
		logger.Printf("Client stopped with error: %v", clientErr)
	}
	if err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}

	if m, ok := final.(ui.Model); ok && m.Redirected() {
		fmt.Println("Your session has ended. Log in again and restart chatsync with a new token.")
	}
	return nil
}

func openLog(path string) (*log.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), func() { f.Close() }, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Printf("Metrics listening on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("Metrics server error: %v", err)
	}
}
