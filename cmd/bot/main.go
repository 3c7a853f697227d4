package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"StageSentinel/internal/api"
	"StageSentinel/internal/collector"
	"StageSentinel/internal/config"
	"StageSentinel/internal/cycle"
	"StageSentinel/internal/dispatch"
	"StageSentinel/internal/gate"
	"StageSentinel/internal/notifier"
	"StageSentinel/internal/publisher"
	"StageSentinel/internal/recorder"
	"StageSentinel/internal/scheduler"
	"StageSentinel/internal/settings"
	"StageSentinel/internal/token"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] StageSentinel starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	loc, err := gate.LoadLocation(cfg.Strategy.Timezone)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	// Init fetcher and token brokers
	var (
		fetcher  collector.Fetcher
		approval api.ApprovalSource
	)
	switch cfg.DataSource.Provider {
	case "kis":
		issuer := token.NewKISIssuer(cfg.KIS.BaseURL, cfg.KIS.AppKey, cfg.KIS.AppSecret, newHTTPClient(cfg.Proxy))
		access := token.NewBroker("kis-access", issuer.AccessToken())
		access.SafetyMargin = time.Duration(cfg.KIS.TokenSafetyMarginMinutes) * time.Minute
		approval = token.NewBroker("kis-approval", issuer.ApprovalKey())
		fetcher = collector.NewKISFetcher(cfg.KIS.BaseURL, cfg.KIS.AppKey, cfg.KIS.AppSecret, access, cfg.KIS.RequestsPerSecond, cfg.Proxy)
	case "mock":
		fetcher = &collector.MockFetcher{}
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", fetcher.Name())

	// Init alert store
	var store recorder.AlertStore
	switch cfg.Database.Driver {
	case "postgres":
		gs, err := recorder.NewGormStore(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("[FATAL] init postgres store: %v", err)
		}
		store = gs
	case "memory":
		log.Println("[WARN] using in-memory alert store; alerts are lost on restart")
		store = recorder.NewMemoryStore()
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0755); err != nil {
			log.Fatalf("[FATAL] create data dir: %v", err)
		}
		ss, err := recorder.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("[FATAL] init sqlite store: %v", err)
		}
		store = ss
	}
	defer store.Close()

	// Init publisher
	var pub interface {
		dispatch.Publisher
		Close() error
	} = publisher.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := publisher.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Printf("[WARN] init kafka publisher failed, batches will not be published: %v", err)
		} else {
			pub = kp
			log.Printf("[INFO] publishing batches to kafka topic %s", cfg.Kafka.Topic)
		}
	}
	defer pub.Close()

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	// Init runner
	src := settings.NewSource(cfg.Strategy, cfg.SettingsFile)
	batcher := &dispatch.Batcher{
		Store:     store,
		Sender:    tn,
		Publisher: pub,
		Lookback:  time.Duration(cfg.Dispatch.LookbackMinutes) * time.Minute,
		Location:  loc,
	}
	runner := cycle.NewRunner(src, collector.NewCollector(fetcher), store, batcher,
		time.Duration(cfg.Dedup.WindowMinutes)*time.Minute)
	runner.DailyIdempotency = cfg.Dedup.DailyIdempotency

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, runner, tn, loc)
	if err := sched.RegisterAll(cfg.Schedule.CheckCron, cfg.Schedule.DispatchCron, cfg.Schedule.RebalanceCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, sched.HandleCommand)
	log.Println("[INFO] Telegram polling started")

	// Start HTTP API
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(cfg.HTTP.Addr, api.NewRouter(api.NewController(runner, approval)))
	go func() {
		log.Printf("[INFO] HTTP API listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] HTTP server: %v", err)
		}
	}()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing forced check now")
		go sched.RunCheckNow()
	}

	log.Println("[INFO] StageSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP server forced to shutdown: %v", err)
	}
	cancel()
	log.Println("[INFO] StageSentinel stopped")
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: 30 * time.Second, Transport: transport}
}
