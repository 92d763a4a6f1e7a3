// Package main contains the entrypoint for the WhatsApp bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/wabot/internal/adapter/whatsapp"
	"github.com/edgard/wabot/internal/ai"
	"github.com/edgard/wabot/internal/bot"
	"github.com/edgard/wabot/internal/bot/handlers"
	"github.com/edgard/wabot/internal/bot/tasks"
	"github.com/edgard/wabot/internal/classifier"
	"github.com/edgard/wabot/internal/config"
	"github.com/edgard/wabot/internal/connection"
	"github.com/edgard/wabot/internal/content"
	"github.com/edgard/wabot/internal/cooldown"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/httpapi"
	"github.com/edgard/wabot/internal/logger"
	"github.com/edgard/wabot/internal/media"
	"github.com/edgard/wabot/internal/notify"
	"github.com/edgard/wabot/internal/permission"
	"github.com/edgard/wabot/internal/router"
	"github.com/edgard/wabot/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the process
// exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, dialect, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		return 1
	}
	closeDB := sync.OnceFunc(func() { database.CloseDB(db) })
	defer closeDB()
	store := database.NewStore(db, dialect, log)

	alerter, err := notify.NewTelegram(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID, log)
	if err != nil {
		log.Error("Failed to create alert notifier", "error", err)
		return 1
	}

	client := whatsapp.New(whatsapp.Options{
		StorePath:  cfg.WhatsApp.StorePath,
		DeviceName: cfg.WhatsApp.DeviceName,
		Logger:     log,
	})
	manager := connection.NewManager(connection.Options{
		SessionID:   cfg.WhatsApp.SessionID,
		Dialer:      client,
		Credentials: client,
		Sessions:    store,
		Alerter:     alerter,
		Logger:      log,
	})

	clock := clockwork.NewRealClock()
	evaluator := permission.NewEvaluator(cfg.Bot.OwnerNumber, client)
	tracker := cooldown.NewTracker(clock)

	app := bot.NewBot(log, cfg)
	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Transport:  client,
		Groups:     evaluator,
		AI:         ai.NewFromConfig(ctx, cfg, store, log),
		Media:      media.NewDownloader(cfg.Media.MaxFileSizeBytes(), log),
		Content:    content.New(nil, content.Endpoints{}, log),
		Lifecycle:  app,
		Connection: manager,
		Cooldowns:  tracker,
		Started:    clock.Now(),
	}

	registry, err := handlers.NewRegistry(hDeps)
	if err != nil {
		log.Error("Failed to register commands", "error", err)
		return 1
	}

	r := router.New(registry, evaluator, tracker, client, router.Messages{
		OwnerOnly:  cfg.Messages.OwnerOnly,
		GroupsOnly: cfg.Messages.GroupsOnly,
		AdminOnly:  cfg.Messages.AdminOnly,
		Cooldown:   cfg.Messages.Cooldown,
		Failure:    cfg.Messages.Failure,
	}, log)

	cls := classifier.New(classifier.Options{
		Prefix:         cfg.Bot.Prefix,
		MaxConcurrent:  cfg.Bot.MaxConcurrent,
		HandlerTimeout: cfg.Bot.HandlerTimeout,
		Router:         r,
		Policies:       store,
		Activity:       store,
		Passive: []classifier.PassiveHandler{
			handlers.NewAntiLinkHandler(hDeps),
			handlers.NewChatHandler(hDeps),
		},
		Logger: log,
	})

	groupEvents := handlers.NewGroupEvents(hDeps)
	dispatch := logger.Middleware(log)(func(ctx context.Context, msg *transport.Message) {
		if err := cls.Dispatch(ctx, msg); err != nil {
			log.DebugContext(ctx, "Message dropped", "message_id", msg.ID, "error", err)
		}
	})
	client.SetHandlers(transport.Handlers{
		ConnectionUpdate: func(u transport.ConnectionUpdate) { manager.HandleUpdate(ctx, u) },
		CredentialsUpdate: func() {
			if err := manager.HandleCredentialsUpdate(ctx); err != nil && !errors.Is(err, connection.ErrTerminal) {
				log.Error("Failed to save credentials", "error", err)
			}
		},
		Message:             func(msg *transport.Message) { dispatch(ctx, msg) },
		ParticipantsChanged: func(ev transport.ParticipantsChanged) {
			if err := cls.Go(ctx, func(ctx context.Context) { groupEvents.Handle(ctx, ev) }); err != nil {
				log.DebugContext(ctx, "Membership event dropped", "conversation", ev.Conversation, "error", err)
			}
		},
	})

	tDeps := tasks.TaskDeps{
		Logger:    log,
		Store:     store,
		Cooldowns: tracker,
		Sessions:  manager,
		Config:    cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	log.Info("Starting bot...")
	runErr := app.Run(ctx, bot.Components{
		Session:     manager,
		Dispatcher:  cls,
		Persistence: bot.CloseFunc(closeDB),
		Transport:   client,
		Server:      httpapi.NewServer(cfg.HTTP, manager, log),
		Scheduler:   sched,
	})

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	code := app.ExitCode()
	log.Info("Bot stopped", "exit_code", code)
	return code
}
