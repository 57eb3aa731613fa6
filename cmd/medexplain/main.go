package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"medexplain/internal/app"
	"medexplain/internal/config"
	"medexplain/internal/server"
	"medexplain/internal/util"
	"medexplain/pkg/ai"
	"medexplain/pkg/annotate"
	"medexplain/pkg/extract"
	"medexplain/pkg/storage"
	"medexplain/pkg/store"
	"medexplain/pkg/translate"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	sessionTTL, err := config.ParseDuration(cfg.SessionTTL, 0)
	if err != nil {
		return fmt.Errorf("session ttl: %w", err)
	}
	translationTimeout, _ := config.ParseDuration(cfg.Translation.Timeout, config.DefaultTranslationTimeout)
	generationTimeout, _ := config.ParseDuration(cfg.AI.Timeout, config.DefaultGenerationTimeout)
	ocrTimeout, _ := config.ParseDuration(cfg.OCR.Timeout, config.DefaultOCRTimeout)

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if cfg.RedisAddr != "" {
		redisRevoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisRevoker.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisRevoker.Close()
		revoker = redisRevoker
	} else {
		logger.Warn("redisAddr not set; token revocation is kept in memory")
	}
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker)
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}

	files, err := buildFileStorage(cfg.Storage)
	if err != nil {
		return err
	}

	extractor, closeOCR, err := buildExtractor(ctx, cfg.OCR, ocrTimeout, logger)
	if err != nil {
		return err
	}
	defer closeOCR()

	translator := buildTranslator(ctx, cfg.Translation, translationTimeout, logger)

	model, err := ai.NewChatModel(ai.Options{
		Provider: cfg.AI.Provider,
		BaseURL:  cfg.AI.BaseURL,
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.GeneralModel,
		Timeout:  generationTimeout,
	})
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	annCfg := annotate.DefaultConfig(cfg.AI.GeneralModel, cfg.AI.ExtractionModel)
	annCfg.Logger = logger

	core, err := app.New(app.Config{
		Store:      db,
		Sessions:   sessions,
		Files:      files,
		Extractor:  extractor,
		Translator: translator,
		Annotator:  annotate.New(model, annCfg),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	trusted, err := util.ParseTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	httpServer, err := server.New(server.Config{
		App:            core,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: trusted,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Uploads run extraction, translation and generation inline.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr, "translation_providers", translator.Providers())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildFileStorage(cfg config.StorageConfig) (storage.FileStorage, error) {
	switch cfg.Backend {
	case "minio":
		s, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return s, nil
	}
}

func buildExtractor(ctx context.Context, cfg config.OCRConfig, timeout time.Duration, logger *slog.Logger) (*extract.Extractor, func(), error) {
	closeFn := func() {}
	var recognizer extract.Recognizer
	switch cfg.Backend {
	case "vision":
		v, err := extract.NewVisionRecognizer(ctx, timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("init vision ocr: %w", err)
		}
		recognizer = v
		closeFn = func() {
			if err := v.Close(); err != nil {
				logger.Warn("close vision client", "error", err)
			}
		}
	default:
		recognizer = extract.NewTesseract(cfg.TesseractCmd, cfg.TesseractLang, timeout)
	}
	return extract.New(extract.Config{
		Recognizer: recognizer,
		Rasterizer: extract.NewPdftoppm(cfg.PdftoppmCmd, timeout),
		DPI:        cfg.DPI,
		Preprocess: cfg.Preprocess,
		Logger:     logger,
	}), closeFn, nil
}

// buildTranslator creates the providers in configured priority order,
// skipping those without credentials.
func buildTranslator(ctx context.Context, cfg config.TranslationConfig, timeout time.Duration, logger *slog.Logger) *translate.Translator {
	var providers []translate.Provider
	for _, name := range cfg.Providers {
		var (
			p   translate.Provider
			err error
		)
		switch name {
		case "google":
			if cfg.GoogleAPIKey == "" {
				continue
			}
			p, err = translate.NewGoogle(ctx, cfg.GoogleAPIKey, timeout)
		case "azure":
			if cfg.AzureKey == "" {
				continue
			}
			p, err = translate.NewAzure(cfg.AzureKey, cfg.AzureRegion, cfg.AzureEndpoint, timeout)
		case "deepl":
			if cfg.DeepLKey == "" {
				continue
			}
			p, err = translate.NewDeepL(cfg.DeepLKey, cfg.DeepLEndpoint, timeout)
		default:
			continue
		}
		if err != nil {
			logger.Warn("translation provider disabled", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		logger.Warn("no translation provider configured; reports keep their original text")
	}
	return translate.New(logger, providers...)
}
