package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"zapisnik/internal/api"
	"zapisnik/internal/audit"
	"zapisnik/internal/booking"
	"zapisnik/internal/cache"
	"zapisnik/internal/config"
	"zapisnik/internal/db"
	"zapisnik/internal/google"
	"zapisnik/internal/hold"
	"zapisnik/internal/metrics"
	"zapisnik/internal/notify"
	"zapisnik/internal/reminders"
	"zapisnik/internal/schedule"
	"zapisnik/internal/slots"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("ZAPISNIK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	names := cache.NewNames(rdb, cfg.NameCacheTTL(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := notify.NewBus()
	guard := booking.NewGuard(database, database)

	bookings := booking.NewService(database, database, guard, bus, booking.Config{
		ClientCancelLock:     cfg.ClientCancelLock(),
		ClientRescheduleLock: cfg.ClientRescheduleLock(),
		MaxDaysAhead:         cfg.MaxAdvanceDays(),
	}, logger)

	schedules := schedule.NewService(database, guard, cfg.MaxAdvanceDays(), logger)
	schedules.AttachBus(bus)
	generator := slots.NewGenerator(schedules, database, slots.Config{
		Step:         cfg.SlotStep(),
		SameDayLead:  cfg.SameDayLead(),
		MaxDaysAhead: cfg.MaxAdvanceDays(),
	})

	if cfg.API.Enabled {
		if cfg.API.Port == 0 {
			cfg.API.Port = 8080
		}
		apiServer := api.NewHTTPServer(cfg.API.Port, cfg.API.APIKey, bookings, schedules, generator, database, logger)
		go apiServer.Run(ctx)
	}

	composer := notify.NewComposer(database, database, cachedNames{names: names, db: database})

	var sender notify.Sender
	if cfg.Telegram.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create bot error")
		}
		bot.Debug = cfg.Telegram.Debug
		sender = notify.NewTelegramSender(bot)
	} else {
		logger.Warn().Msg("no bot token configured, notifications go to the log")
		sender = notify.NewLogSender(logger)
	}

	dispatcher := notify.NewDispatcher(sender, composer, cfg.Notify.MessagesPerSecond, cfg.Notify.QueueSize, logger)
	dispatcher.Attach(bus)
	go dispatcher.Run(ctx)

	sweeper := hold.NewSweeper(database, bus, hold.Config{
		HoldTTL:  cfg.HoldTTL(),
		Interval: cfg.SweepInterval(),
	}, logger)
	go sweeper.Run(ctx)

	if cfg.Reminders.Enabled {
		rem := reminders.NewSweeper(database, bus, reminders.Config{
			LeadTime: cfg.ReminderLead(),
			Interval: cfg.ReminderInterval(),
		}, logger)
		go rem.Run(ctx)
	}

	if cfg.Audit.Enabled {
		auditSvc := audit.NewService(database, database, audit.Config{
			Dir:           cfg.Audit.Dir,
			RetentionDays: cfg.Audit.RetentionDays,
			ExportOnStart: cfg.Audit.ExportOnStart,
		}, logger)
		go auditSvc.Run(ctx)
	}

	if cfg.Sheets.Enabled {
		creds, err := os.ReadFile(cfg.Sheets.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("read sheets credentials")
		}
		mirror, err := google.NewSheetsService(ctx, creds, cfg.Sheets.SpreadsheetID, database, database, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets mirror")
		}
		if err := mirror.EnsureHeader(ctx); err != nil {
			logger.Error().Err(err).Msg("sheets header init failed")
		}
		mirror.Attach(bus)
		go mirror.Run(ctx)
	}

	if cfg.Backup.Enabled {
		backupper := db.NewBackupper(database, db.BackupConfig{
			Enabled:       true,
			Dir:           cfg.Backup.Dir,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Backup.RetentionDays,
		}, logger)
		go backupper.Run(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("zapisnik started")
	<-ctx.Done()
	logger.Info().Msg("zapisnik stopped")
}

// cachedNames adapts the read-through cache to the composer's resolver.
type cachedNames struct {
	names *cache.Names
	db    *db.DB
}

func (c cachedNames) MasterName(ctx context.Context, id int64) (string, error) {
	return c.names.Get(ctx, "master", id, c.db.MasterName)
}

func (c cachedNames) ClientName(ctx context.Context, id int64) (string, error) {
	return c.names.Get(ctx, "client", id, c.db.ClientName)
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
