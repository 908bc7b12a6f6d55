package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkgate/internal/aggregate"
	"parkgate/internal/authorize"
	"parkgate/internal/barrier"
	"parkgate/internal/camera"
	"parkgate/internal/config"
	"parkgate/internal/db"
	"parkgate/internal/domain/gate"
	gatehttp "parkgate/internal/http"
	"parkgate/internal/notify"
	"parkgate/internal/parking"
	"parkgate/internal/pipeline"
	"parkgate/internal/recognize"
	"parkgate/internal/repository"
)

const mockConfirmDelay = 500 * time.Millisecond

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service failed")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	store := repository.NewStore(gdb)

	// Initial registry snapshot; reloads come through the admin API.
	vehicles, err := store.LoadVehicles(ctx)
	if err != nil {
		return fmt.Errorf("load vehicles: %w", err)
	}
	registry := authorize.NewRegistry(authorize.NewSnapshot(vehicles, time.Now()))
	authEngine := authorize.NewEngine(registry, log)
	log.Info().Int("vehicles", len(vehicles)).Msg("vehicle registry loaded")

	notifier := notify.NewDispatcher(cfg.Notify.WebhookURL, cfg.Notify.Timeout, log)

	// Barrier controllers, one run loop per gate.
	var wg sync.WaitGroup
	controllers := make(map[string]*barrier.Controller, len(cfg.Barriers))
	for _, bc := range cfg.Barriers {
		hw, err := barrier.NewHardware(bc.Driver, mockConfirmDelay)
		if err != nil {
			return fmt.Errorf("barrier %s: %w", bc.ID, err)
		}
		ctrl := barrier.NewController(bc.ID, hw, barrier.Options{
			OpenTime:         bc.OpenTime,
			ActuationTimeout: bc.ActuationTimeout,
			OnFault:          notifier.NotifyBarrierFault,
		}, log)
		controllers[bc.ID] = ctrl
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.Run(ctx)
		}()
	}

	var gateway parking.PaymentGateway = parking.NoopGateway{}
	if cfg.Payment.TerminalURL != "" {
		gateway = parking.NewHTTPGateway(cfg.Payment.TerminalURL, cfg.Payment.Timeout)
	}
	sessions := parking.NewManager(store, gateway, cfg.Pricing, log)

	recognizer, err := buildRecognizer(cfg.Recognizer, log)
	if err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	defer recognizer.Close()

	// One pipeline per camera, all fanning into a shared event stream.
	events := make(chan gate.RecognitionEvent, 64)
	routes := make(map[string]pipeline.Route, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		source, err := camera.NewRTSPSource(cam.ID, cam.StreamURL, cam.SampleInterval)
		if err != nil {
			return fmt.Errorf("camera %s: %w", cam.ID, err)
		}
		queue := camera.NewFrameQueue(cam.QueueSize)
		pool := recognize.NewPool(recognizer, cfg.Recognizer.BatchSize, cfg.Recognizer.FrameTimeout, log)
		agg := aggregate.New(cam.ID, aggregate.Options{
			PassTimeout: cfg.Aggregator.PassTimeout,
			MaxFrames:   cfg.Aggregator.MaxFrames,
			Cooldown:    cfg.Aggregator.Cooldown,
		}, log)

		p := pipeline.NewCameraPipeline(source, queue, pool, agg, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, events)
		}()

		route := pipeline.Route{Direction: cam.Direction}
		if cam.BarrierID != "" {
			route.Barrier = controllers[cam.BarrierID]
		}
		routes[cam.ID] = route
	}

	dispatcher := pipeline.NewDispatcher(authEngine, store, sessions, notifier, routes, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx, events)
	}()

	srv := buildServer(cfg, store, controllers, registry, log)
	go func() {
		log.Info().Str("listen", cfg.Server.Listen).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	wg.Wait()
	log.Info().Msg("stopped")
	return nil
}

// buildRecognizer resolves the engine strategy at startup: probe the NPU path
// when configured, always keep the classical engine as the fallback.
func buildRecognizer(cfg config.RecognizerConfig, log zerolog.Logger) (*recognize.Recognizer, error) {
	opts := recognize.Options{
		Accelerated:             cfg.Accelerated,
		DetectModel:             cfg.DetectModel,
		OCRModel:                cfg.OCRModel,
		Language:                cfg.Language,
		PageSegMode:             cfg.PageSegMode,
		CharWhitelist:           cfg.CharWhitelist,
		PlatePattern:            cfg.PlatePattern,
		MinPlateLength:          cfg.MinPlateLength,
		MaxPlateLength:          cfg.MaxPlateLength,
		ConfidenceThreshold:     cfg.ConfidenceThreshold,
		CharConfidenceThreshold: cfg.CharConfidenceThreshold,
		MaxImageWidth:           cfg.MaxImageWidth,
	}

	post, err := recognize.NewPostprocessor(opts)
	if err != nil {
		return nil, err
	}

	classical, err := recognize.NewClassicalEngine(opts)
	if err != nil {
		return nil, err
	}

	var preferred recognize.Engine
	if cfg.Accelerated {
		accel, err := recognize.NewAcceleratedEngine(opts)
		if err != nil {
			// No NPU on this host; the classical path carries the load.
			log.Warn().Err(err).Msg("accelerated engine unavailable, using classical OCR only")
		} else {
			preferred = accel
		}
	}

	var frameStore recognize.FrameStore
	if cfg.RetainImages {
		ds, err := recognize.NewDiskFrameStore(cfg.RetentionDir)
		if err != nil {
			return nil, err
		}
		frameStore = ds
	}

	return recognize.NewRecognizer(preferred, classical, post, frameStore, log), nil
}

func buildServer(cfg *config.Config, store *repository.Store, controllers map[string]*barrier.Controller, registry *authorize.Registry, log zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	barriers := make(map[string]gatehttp.BarrierControl, len(controllers))
	for id, ctrl := range controllers {
		barriers[id] = ctrl
	}

	reload := func(ctx context.Context) (int, error) {
		vehicles, err := store.LoadVehicles(ctx)
		if err != nil {
			return 0, err
		}
		registry.Swap(authorize.NewSnapshot(vehicles, time.Now()))
		log.Info().Int("vehicles", len(vehicles)).Msg("vehicle registry reloaded")
		return len(vehicles), nil
	}

	handler := gatehttp.NewHandler(store, barriers, reload, log)
	handler.Register(router, gatehttp.JWTAuth(cfg.Auth.JWTSecret))

	return &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router,
	}
}
