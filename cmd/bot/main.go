package main

import (
	"context"
	"encoding/json"
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

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/booking"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/bot"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/config"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/database"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/events"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/metrics"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/notify"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/report"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/schedule"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/scheduler"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/sheets"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SCHEDULER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Booking.Timezone).Msg("invalid timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, loc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := sheets.NewClient(ctx,
		cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName,
		cfg.Booking.CloseHour, loc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create sheets client error")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}
	botAPI.Debug = cfg.Telegram.Debug

	sink := notify.Multi{notify.NewTelegramSink(botAPI, &logger)}
	if cfg.SMTP.Server != "" {
		sink = append(sink, notify.NewEmailSink(notify.SMTPConfig{
			Server:       cfg.SMTP.Server,
			Port:         cfg.SMTP.Port,
			Login:        cfg.SMTP.Login,
			Password:     cfg.SMTP.Password,
			BranchEmails: cfg.SMTP.BranchEmails,
			DefaultEmail: cfg.SMTP.DefaultEmail,
		}, &logger))
	}

	bus := events.NewEventBus()
	subscribeSinks(ctx, bus, sink, &logger)

	// Storage components interpret slot timestamps in the db's timezone.
	svc := booking.NewService(db, bus, cfg.Booking.SlotCapacity, db.Location(), &logger)

	cache := sheets.NewBranchCache(feed, rdb, &logger)
	go cache.StartRefreshing(ctx, cfg.CacheRefresh())

	sync := schedule.NewSynchronizer(feed, db, cfg.Booking.OpenHour, cfg.Booking.CloseHour, db.Location(), &logger)
	sync.Start(ctx)

	sweep := scheduler.NewSweep(db, db, sink, cfg.SweepInterval(), db.Location(), &logger)
	go sweep.Start(ctx)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, database.BackupConfig{
			Enabled:       true,
			Interval:      time.Duration(cfg.Backup.IntervalHours) * time.Hour,
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backup.Start(ctx)
	}

	if cfg.Report.Enabled {
		exporter := report.NewExporter(db, cfg.Report.Path, &logger)
		go exporter.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("Scheduler started")
	bot.New(botAPI, svc, &logger).Start(ctx)
	logger.Info().Msg("Scheduler stopped")
}

// subscribeSinks fans booking events out to the notification sinks. Delivery
// runs on its own goroutine so the claim path never waits on Telegram rate
// limits or the mail server; failures are logged and never retried.
func subscribeSinks(ctx context.Context, bus *events.EventBus, sink notify.Sink, logger *zerolog.Logger) {
	handler := func(kind notify.Kind) events.EventHandler {
		return func(ev events.Event) error {
			var p notify.Payload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				logger.Error().Err(err).Str("type", ev.Type).Msg("Malformed event payload")
				return nil
			}
			go func() {
				if err := sink.Deliver(ctx, kind, p); err != nil {
					logger.Error().Err(err).Str("type", ev.Type).Msg("Notification delivery failed")
				}
			}()
			return nil
		}
	}
	bus.Subscribe(events.TypeBookingConfirmed, handler(notify.KindBookingConfirmed))
	bus.Subscribe(events.TypeBookingCancelled, handler(notify.KindBookingCancelled))
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
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
