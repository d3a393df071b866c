package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	attendantx "github.com/trenchburger/attendant/agent/attendant"
	compactx "github.com/trenchburger/attendant/agent/compact"
	contractx "github.com/trenchburger/attendant/agent/contract"
	llmx "github.com/trenchburger/attendant/agent/llm"
	promptx "github.com/trenchburger/attendant/agent/prompt"
	speechx "github.com/trenchburger/attendant/agent/speech"
	statex "github.com/trenchburger/attendant/agent/state"
	toolx "github.com/trenchburger/attendant/agent/tool"
	orderx "github.com/trenchburger/attendant/order"
	configx "github.com/trenchburger/attendant/pkg/config"
	_ "github.com/trenchburger/attendant/pkg/logger/autoload"
	openrouterx "github.com/trenchburger/attendant/pkg/openrouter"
	serverx "github.com/trenchburger/attendant/server"
)

type appConfig struct {
	Port            string        `envconfig:"PORT" split_words:"true" default:"8080"`
	DatabaseDSN     string        `envconfig:"DATABASE_DSN" split_words:"true"`
	HistoryCapacity int           `envconfig:"HISTORY_CAPACITY" split_words:"true" default:"20"`
	MaxCycles       int           `envconfig:"MAX_CYCLES" split_words:"true" default:"10"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[appConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm configuration")
	}

	ledger := newLedger(ctx, appCfg.DatabaseDSN)
	store := newSessionStore()

	sessions, err := statex.NewManager(store)
	if err != nil {
		log.Fatal().Err(err).Msg("create session manager")
	}

	prompts := promptx.LoadPromptSet()

	attendantBuilder := llmCfg.OpenRouterFor(llmx.RoleAttendant)
	generator, err := llmx.NewGenerator(ctx, &attendantBuilder, prompts.Attendant, toolx.Infos())
	if err != nil {
		log.Fatal().Err(err).Msg("create generator")
	}

	summarizerBuilder := llmCfg.OpenRouterFor(llmx.RoleSummarizer)
	summarizer, err := llmx.NewSummarizer(ctx, &summarizerBuilder, prompts.Summarizer)
	if err != nil {
		log.Fatal().Err(err).Msg("create summarizer")
	}

	compactor, err := compactx.New(appCfg.HistoryCapacity, summarizer)
	if err != nil {
		log.Fatal().Err(err).Msg("create compactor")
	}

	// A disabled synthesizer must stay a nil interface, not a typed nil.
	var speech contractx.Synthesizer
	if client := newSpeech(*llmCfg, prompts.Attendant); client != nil {
		speech = client
	}

	attendant, err := attendantx.New(
		sessions,
		generator,
		compactor,
		toolx.NewRegistry(ledger),
		speech,
		attendantx.Config{MaxCycles: appCfg.MaxCycles},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("create attendant service")
	}

	handler := serverx.NewHandler(attendant, ledger)
	srv := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  appCfg.ReadTimeout,
		WriteTimeout: appCfg.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

// newLedger opens the Postgres ledger when a DSN is configured, otherwise
// falls back to the in-memory ledger.
func newLedger(ctx context.Context, dsn string) orderx.Ledger {
	if dsn == "" {
		log.Warn().Msg("APP_DATABASE_DSN not set, using in-memory order ledger")
		return orderx.NewMemoryLedger()
	}

	db := orderx.OpenDB(dsn)
	ledger := orderx.NewBunLedger(db)
	if err := ledger.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialize order ledger")
	}
	log.Info().Msg("postgres order ledger ready")
	return ledger
}

// newSessionStore picks Upstash Redis when configured, otherwise memory.
func newSessionStore() statex.Store {
	if os.Getenv("SESSION_REDIS_URL") == "" {
		log.Warn().Msg("SESSION_REDIS_URL not set, using in-memory session store")
		return statex.NewMemoryStore()
	}

	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("SESSION_REDIS")
	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create redis session store")
	}
	log.Info().Msg("upstash redis session store ready")
	return store
}

// newSpeech builds the synthesizer when an API key is available. A nil
// synthesizer disables audio; text replies still work.
func newSpeech(llmCfg llmx.Config, instructions string) *speechx.Client {
	speechCfg := configx.MustNew[speechx.Config]("SPEECH")

	endpoint := openrouterx.Config{
		APIKey:  os.Getenv("SPEECH_API_KEY"),
		BaseURL: os.Getenv("SPEECH_BASE_URL"),
	}
	if endpoint.APIKey == "" {
		endpoint.APIKey = llmCfg.APIKey
		endpoint.BaseURL = llmCfg.BaseURL
	}

	api := openrouterx.NewClient(endpoint)
	if api == nil {
		log.Warn().Msg("no speech api key, audio replies disabled")
		return nil
	}

	client, err := speechx.NewClient(api, *speechCfg, instructions)
	if err != nil {
		log.Fatal().Err(err).Msg("create speech client")
	}
	log.Info().Str("model", speechCfg.Model).Str("voice", speechCfg.Voice).Msg("speech synthesis ready")
	return client
}
