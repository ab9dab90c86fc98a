// Command chatbot is a headless chatsync client. It logs every event to
// stderr and answers simple commands, which makes it useful for scripting
// and smoke testing a server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aeolun/chatsync/pkg/botlib"
	"github.com/aeolun/chatsync/pkg/client"
	"github.com/aeolun/chatsync/pkg/config"
	"github.com/aeolun/chatsync/pkg/restapi"
)

func main() {
	configPath := flag.String("config", "~/.chatsync/bot.toml", "Path to config file")
	server := flag.String("server", "", "Server base URL (overrides config)")
	token := flag.String("token", "", "Session token (overrides config)")
	followUnread := flag.Bool("follow-unread", true, "Open private chats as soon as they have unread messages")
	statePath := flag.String("state", "", "State database path (default: none, contacts are not persisted)")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatbot] ", log.LstdFlags)
	if err := run(logger, *configPath, *server, *token, *statePath, *followUnread); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}
}

func run(logger *log.Logger, configPath, server, token, statePath string, followUnread bool) error {
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

	api, err := restapi.NewClient(cfg.Server.BaseURL, cfg.Server.SessionCookie)
	if err != nil {
		return err
	}
	api.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.RequestTimeout())
	self, err := api.CurrentUser(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("identify session: %w", err)
	}

	bot := botlib.New(botlib.Config{Self: self, Logger: logger, FollowUnread: followUnread})
	registerCommands(bot)

	opts := client.Options{
		Self:         self,
		Endpoint:     api.EndpointFor(cfg.Server.WSPath),
		Dialer:       client.NewWebSocketDialer(api.CookieHeader(), cfg.Timing.RequestTimeout()),
		Renderer:     bot,
		Collaborator: api,
		Timing: client.Timing{
			ReconnectDelay:     cfg.Timing.ReconnectDelay(),
			TypingPingInterval: cfg.Timing.TypingPingInterval(),
			TypingIdle:         cfg.Timing.TypingIdle(),
			TypingExpiry:       cfg.Timing.TypingExpiry(),
			RequestTimeout:     cfg.Timing.RequestTimeout(),
		},
		Logger: logger,
	}
	if statePath != "" {
		state, err := client.OpenState(statePath)
		if err != nil {
			return fmt.Errorf("open state: %w", err)
		}
		defer state.Close()
		opts.State = state
	}

	chat, err := client.New(opts)
	if err != nil {
		return err
	}
	bot.Attach(chat)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("Starting bot as %s against %s", self, cfg.Server.BaseURL)
	clientDone := make(chan error, 1)
	go func() { clientDone <- chat.Run(runCtx) }()

	botErr := bot.Run(runCtx)
	stop()
	if err := <-clientDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("Client stopped: %v", err)
	}
	logger.Printf("Bot stopped")
	return botErr
}

// registerCommands installs the built-in responses
func registerCommands(bot *botlib.Bot) {
	started := time.Now()

	answer := func(ctx *botlib.Context, text string) {
		switch {
		case text == "!ping" || text == "ping":
			ctx.Reply("pong")
		case text == "!uptime" || text == "uptime":
			ctx.Reply(fmt.Sprintf("up %s", time.Since(started).Round(time.Second)))
		case strings.HasPrefix(text, "!echo "):
			ctx.Reply(strings.TrimPrefix(text, "!echo "))
		}
	}

	bot.OnMention(func(ctx *botlib.Context, msg *botlib.Message) {
		ctx.Log("Mentioned by %s in %s", msg.Sender, msg.Target)
		query := msg.MentionedContent()
		if query == "" {
			ctx.Reply(fmt.Sprintf("Hi %s! Try !ping, !uptime or !echo <text>.", msg.Sender))
			return
		}
		answer(ctx, query)
	})

	bot.OnPrivate(func(ctx *botlib.Context, msg *botlib.Message) {
		if msg.IsFile() {
			ctx.Reply(fmt.Sprintf("Thanks for %s!", msg.Filename))
			return
		}
		answer(ctx, strings.TrimSpace(msg.Content))
	})

	bot.OnMessage(func(ctx *botlib.Context, msg *botlib.Message) {
		answer(ctx, strings.TrimSpace(msg.Content))
	})
}
