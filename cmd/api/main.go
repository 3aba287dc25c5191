package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/objectionlab/voicecall/backend/internal/config"
	"github.com/objectionlab/voicecall/backend/internal/handler"
	"github.com/objectionlab/voicecall/backend/internal/logging"
	"github.com/objectionlab/voicecall/backend/internal/model/persona"
	"github.com/objectionlab/voicecall/backend/internal/service/ai"
	"github.com/objectionlab/voicecall/backend/internal/service/call"
	"github.com/objectionlab/voicecall/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	log.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using system environment only")
	}

	personaStore, err := loadPersonas(cfg.Call)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load personas")
	}

	generator, err := newGenerator(ctx, cfg.AI, logging.Component(logger, "ai"))
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.AI.Provider).Msg("generation unavailable, turns will fail with 503")
	} else {
		logger.Info().Str("provider", cfg.AI.Provider).Msg("AI service initialized")
	}

	speechService := speech.NewFromConfig(cfg.Speech, logging.Component(logger, "speech"))
	logger.Info().
		Str("asr", cfg.Speech.ASRProvider).
		Bool("asrReady", speechService.CanTranscribe()).
		Str("tts", cfg.Speech.TTSProvider).
		Bool("ttsReady", speechService.CanSynthesize()).
		Msg("speech service initialized")

	callService := call.NewService(personaStore, ai.NewPromptBuilder(), call.Options{
		IdleTTL:   cfg.Call.IdleTTL,
		MaxActive: cfg.Call.MaxActive,
	}, logging.Component(logger, "calls"))

	pipeline := call.NewPipeline(speechService, generator, speechService, call.PipelineConfig{
		GenerateTimeout: cfg.AI.Timeout,
		WrapUpAfter:     cfg.Call.WrapUpAfter,
		ToneEnabled:     cfg.Call.ToneEnabled,
	}, logging.Component(logger, "pipeline"))

	router := handler.NewRouter(handler.Dependencies{
		Personas:       personaStore,
		Calls:          callService,
		Pipeline:       pipeline,
		Speech:         speechService,
		DefaultPersona: cfg.Call.DefaultPersona,
		MaxAudioBytes:  cfg.Call.MaxAudioBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Logger:         logging.Component(logger, "http"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		callService.RunSweeper(ctx, cfg.Call.SweepInterval)
	})
	wg.Go(func() {
		logger.Info().Str("addr", srv.Addr).Msg("voice call backend listening")
		if err := runServer(ctx, srv); err != nil {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	})
	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

// loadPersonas 优先读取 PERSONA_FILE，否则使用内置人设；默认人设必须存在。
func loadPersonas(cfg config.CallConfig) (*persona.MemoryStore, error) {
	var (
		items []persona.Persona
		err   error
	)
	if cfg.PersonaFile != "" {
		items, err = persona.LoadFile(cfg.PersonaFile)
	} else {
		items, err = persona.Seed()
	}
	if err != nil {
		return nil, err
	}

	store := persona.NewMemoryStore(items)
	if _, ok := store.FindByID(cfg.DefaultPersona); !ok {
		return nil, fmt.Errorf("default persona %q is not in the catalogue", cfg.DefaultPersona)
	}
	return store, nil
}

func newGenerator(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (ai.Generator, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("credentials for %s are not configured", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		client := config.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		return ai.NewOpenAIGenerator(client, ai.OpenAIConfig{
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		}, logger), nil
	default:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		generator, err := ai.NewChainGenerator(ctx, chatModel, logger)
		if err != nil {
			return nil, err
		}
		return generator, nil
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
