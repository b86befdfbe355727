package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kiliankoe/royale/internal/ai"
	"github.com/kiliankoe/royale/internal/ai/ollama"
	"github.com/kiliankoe/royale/internal/ai/openai"
	"github.com/kiliankoe/royale/internal/auth"
	"github.com/kiliankoe/royale/internal/config"
	"github.com/kiliankoe/royale/internal/events"
	"github.com/kiliankoe/royale/internal/game"
	"github.com/kiliankoe/royale/internal/httpapi"
	"github.com/kiliankoe/royale/internal/oracle"
	"github.com/kiliankoe/royale/internal/store"
	"github.com/kiliankoe/royale/internal/ws"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		envFile     = flag.String("env", "", "Load environment from this file instead of ./.env")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Real Time Royale - multiplayer prediction game server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)
  --env FILE      Environment file to load (default: .env)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  DB_TYPE             memory, sqlite, sqlite3, postgres or mysql (default: sqlite)
  DB_PATH             SQLite database file (default: ./royale.db)
  DATABASE_URL        DSN for postgres and mysql
  DEFAULT_PROVIDER    AI provider: "openai" or "ollama" (default: openai)
  DEFAULT_MODEL       AI model to use (default: gpt-4o-mini)
  OPENAI_API_KEY      OpenAI API key (required for OpenAI provider)
  OPENAI_BASE_URL     Custom OpenAI API base URL (optional)
  OLLAMA_HOST         Ollama host URL (default: http://localhost:11434)
  JWT_SECRET          Secret for player tokens (required, 16+ bytes)
  TOKEN_TTL           Player token lifetime (default: 24h)
  AMQP_URL            RabbitMQ URL for room events (optional)
  AMQP_EXCHANGE       RabbitMQ exchange (default: royale.events)
  MAX_ROUNDS          Rounds per game (default: 3)
  FETCH_TIMEOUT       Timeout for challenge data requests (default: 10s)
  AI_TIMEOUT          Timeout for AI provider requests (default: 60s)
  EXPORT_ENABLED      Export round results to file (default: false)
  EXPORT_FILE         Path to export round results (default: ./royale-results.txt)
`, os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Real Time Royale %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	var cfg config.Config
	if *envFile != "" {
		cfg = config.Load(*envFile)
	} else {
		cfg = config.Load()
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	providers := ai.NewRegistry(cfg.DefaultProvider,
		openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.AITimeout),
		ollama.New(cfg.OllamaHost, cfg.AITimeout),
	)
	provider, err := providers.Default()
	if err != nil {
		return err
	}
	orc := oracle.NewLocal(oracle.Config{Timeout: cfg.FetchTimeout, Provider: provider, Model: cfg.DefaultModel})

	bus := events.NewFanout()
	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer pub.Close()
		bus.Add(pub)
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing room events to RabbitMQ")
	}

	opts := []game.Option{game.WithPublisher(bus), game.WithMaxRounds(cfg.MaxRounds)}
	if cfg.ExportEnabled {
		opts = append(opts, game.WithExportFile(cfg.ExportFile))
	}
	machine := game.NewMachine(st, orc, opts...)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), httpapi.RequestID(), httpapi.Logger())
	httpapi.New(machine, signer).Mount(r)

	sock := ws.New(machine, signer, cfg.FetchTimeout+cfg.AITimeout)
	io := sock.Mount(r)
	defer io.Close()
	bus.Add(sock)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DBType).Str("provider", provider.Name()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DBType == "memory" {
		log.Warn().Msg("using in-memory store; rooms and leaderboard are lost on restart")
		return store.NewMemory(), nil
	}
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	db, err := store.OpenSQL(openCtx, cfg.DBType, cfg.DSN())
	if err != nil {
		return nil, err
	}
	return db, nil
}
