package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"binance-spot-bot-go/internal/adaptive"
	"binance-spot-bot-go/internal/bot"
	"binance-spot-bot-go/internal/config"
	"binance-spot-bot-go/internal/exchange"
	"binance-spot-bot-go/internal/ledger"
	"binance-spot-bot-go/internal/logger"
	"binance-spot-bot-go/internal/market"
	"binance-spot-bot-go/internal/models"
	"binance-spot-bot-go/internal/notifier"
	"binance-spot-bot-go/internal/persistence"
	"binance-spot-bot-go/internal/reporter"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
)

const (
	liveWSBaseURL    = "wss://stream.binance.com:9443"
	testnetWSBaseURL = "wss://stream.testnet.binance.vision"

	statusInterval = 10 * time.Minute

	// paperSeedUSDT funds the virtual account backing simulation bots.
	paperSeedUSDT = 1000.0
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	// A default console logger until the real config is loaded.
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file found, reading from system environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("failed to load config: %v", err)
	}

	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()
	log := logger.S()

	// Exchange client.
	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		log.Fatal("BINANCE_API_KEY and BINANCE_SECRET_KEY must be set")
	}
	binance.UseTestnet = cfg.IsTestnet
	wsBaseURL := liveWSBaseURL
	if cfg.IsTestnet {
		wsBaseURL = testnetWSBaseURL
		log.Info("using Binance testnet")
	}
	client := binance.NewClient(apiKey, secretKey)

	// Trade ledger: Postgres when a DSN is configured, in-memory otherwise.
	var led ledger.Ledger
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		pg, err := ledger.NewPostgresLedger(dsn)
		if err != nil {
			log.Fatalf("failed to open trade ledger: %v", err)
		}
		led = pg
		log.Info("trade ledger: postgres")
	} else {
		led = ledger.NewMemoryLedger()
		log.Warn("POSTGRES_DSN not set, trade history will not survive restarts")
	}
	defer led.Close()

	// Position snapshots.
	snapshots, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open snapshot store: %v", err)
	}
	defer snapshots.Close()

	// Telegram.
	var notif notifier.Notifier = notifier.Noop{}
	var tg *notifier.Telegram
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			log.Fatalf("TELEGRAM_CHAT_ID must be a numeric chat id: %v", err)
		}
		tg, err = notifier.NewTelegram(token, chatID, log)
		if err != nil {
			log.Fatalf("failed to start telegram notifier: %v", err)
		}
		tg.Start()
		defer tg.Stop()
		notif = tg
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	controller := adaptive.NewController(led, led, config.AdaptiveProfile, log)

	// One worker per configured symbol.
	var (
		bots    []*bot.Bot
		streams []*market.TradeStream
	)
	for i := range cfg.Bots {
		bc := &cfg.Bots[i]

		data := market.NewBinanceData(client, log)
		if bc.Mode == models.ModeLive || bc.Mode == models.ModeArmed {
			stream := market.NewTradeStream(wsBaseURL, bc.Symbol, log)
			stream.Start()
			streams = append(streams, stream)
			data.AttachStream(stream)
		}

		var exch exchange.Exchange
		switch bc.Mode {
		case models.ModeSimulation, models.ModeAdvisory:
			exch = exchange.NewPaperExchange(data, bc.QuoteAsset, paperSeedUSDT, log)
		default:
			exch = exchange.NewBinanceExchange(client, data, log)
		}

		w, err := bot.New(bc, bot.Deps{
			Data:       data,
			Exchange:   exch,
			Ledger:     led,
			Snapshots:  snapshots,
			Notifier:   notif,
			Adaptive:   controller,
			Logger:     log,
			CycleSleep: time.Duration(cfg.PollIntervalSec) * time.Second,
		})
		if err != nil {
			log.Fatalf("failed to construct bot for %s: %v", bc.Symbol, err)
		}
		bots = append(bots, w)
	}
	if len(bots) == 0 {
		log.Fatal("no bots configured")
	}

	for _, w := range bots {
		w.Start()
	}
	log.Infow("all bots started", "count", len(bots))
	notif.Notify("🤖 spot bot started")

	// Periodic status table.
	statusStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-statusStop:
				return
			case <-ticker.C:
				printStatus(bots)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	close(statusStop)
	for _, w := range bots {
		w.Stop()
	}
	for _, s := range streams {
		s.Stop()
	}

	printStatus(bots)
	printPerformance(bots, led)

	notif.Notify("🛑 spot bot stopped")
	log.Info("all bots stopped")
}

func printStatus(bots []*bot.Bot) {
	rows := make([]reporter.StatusRow, 0, len(bots))
	for _, w := range bots {
		rows = append(rows, reporter.StatusRowFromSnapshot(w.Snapshot()))
	}
	reporter.WriteStatus(os.Stdout, rows)
}

func printPerformance(bots []*bot.Bot, led ledger.Ledger) {
	for _, w := range bots {
		cfg := w.Config()
		sells, err := led.RecentTrades(cfg.BotID, 100, models.Sell)
		if err != nil {
			logger.S().Warnw("failed to load trade history for report",
				"bot", cfg.BotID, "error", err)
			continue
		}
		if len(sells) == 0 {
			continue
		}
		reporter.WritePerformance(os.Stdout, cfg.BotID, cfg.Symbol, sells)

		trades, err := led.RecentTrades(cfg.BotID, 20, "")
		if err == nil && len(trades) > 0 {
			reporter.WriteTrades(os.Stdout, trades)
		}
	}
}
