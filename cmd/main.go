package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcapi "ascend-interview-agent/internal/api/grpc"
	"ascend-interview-agent/internal/app"
	"ascend-interview-agent/internal/auth"
	"ascend-interview-agent/internal/backend"
	"ascend-interview-agent/internal/cache"
	"ascend-interview-agent/internal/config"
	"ascend-interview-agent/internal/events"
	httpapi "ascend-interview-agent/internal/http"
	"ascend-interview-agent/internal/observability"
	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/media"
	"ascend-interview-agent/internal/service/narration"
	"ascend-interview-agent/internal/service/security"
	"ascend-interview-agent/internal/service/session"
	"ascend-interview-agent/internal/service/speech"
	"ascend-interview-agent/internal/service/stt/google"
)

const (
	busSize = 1024
	// Headless narration has no speaker; hold each prompt roughly as long
	// as reading it aloud would take.
	playbackDelay   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()
	application := app.New(cfg)

	if cfg.Interview.ProfileFile != "" {
		profile, err := config.LoadProfile(cfg.Interview.ProfileFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load interview profile")
		}
		profile.Apply(cfg)
		log.Info().Str("file", cfg.Interview.ProfileFile).Msg("interview profile applied")
	}

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("application start failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewSource(cfg.Auth.Token, cfg.Auth.TokenFile)
	client := backend.New(backend.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Tokens:  tokens,
		Retry: backend.RetryPolicy{
			Attempts: cfg.Backend.RetryAttempts,
			Backoff:  cfg.Backend.RetryBackoff,
		},
	})

	narrationCache := cache.New(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Session events go to an in-process bus; Kafka, gRPC health and
	// WebSocket clients subscribe to it.
	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicSession:    cfg.Kafka.TopicSession,
		Principal:       cfg.Kafka.Principal,
	})
	bus := events.NewBus(busSize)
	bus.Subscribe(publisher.Forward(context.Background()))

	recognizer, err := speech.NewAdapterFactory(cfg.STT.Provider, google.Config{
		LanguageCode:   cfg.STT.LanguageCode,
		SampleRateHz:   cfg.STT.SampleRateHz,
		InterimResults: cfg.STT.InterimResults,
		AudioEncoding:  cfg.STT.AudioEncoding,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid speech recognizer")
	}

	devices, err := media.NewStaticDevices(cfg.Media.FramesDir, cfg.STT.AudioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load media sources")
	}

	policy, err := security.NewPolicy(cfg.Security.Level, cfg.Security.Flags)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid security policy")
	}

	ctrl := session.New(session.Config{
		InterviewID:       cfg.Interview.ID,
		Type:              cfg.Interview.Type,
		Difficulty:        cfg.Interview.Difficulty,
		QuestionCount:     cfg.Interview.QuestionCount,
		AutoSubmitSeconds: cfg.Interview.AutoSubmitSeconds,
		TransitionDelay:   cfg.Interview.TransitionDelay,
		MonitorInterval:   cfg.Media.MonitorInterval,
		SecurityThreshold: cfg.Security.Threshold,
		ExitDelay:         cfg.Security.ExitDelay,
		STTProvider:       cfg.STT.Provider,
		NarrationTTL:      cfg.Redis.NarrationTTL,
	}, session.Deps{
		Backend:    client,
		Tokens:     tokens,
		Devices:    devices,
		Recognizer: recognizer,
		Player:     narration.DiscardPlayer{Delay: playbackDelay},
		Cache:      narrationCache,
		Policy:     policy,
		Navigator: session.NavigatorFunc(func(route string) {
			log.Info().Str("route", route).Msg("session navigated")
		}),
		Sink: bus,
	})

	// gRPC health
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("failed to listen")
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	health := grpcapi.Register(grpcServer)
	bus.Subscribe(health.Observe)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	obs := observability.NewServer(cfg.Service.MetricsAddr, func() bool {
		return ctrl.Phase().InProgress()
	})
	obs.Start()

	control := &http.Server{
		Addr:              cfg.Service.ControlAddr,
		Handler:           httpapi.NewRouter(application, ctrl, bus),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Service.ControlAddr).Msg("control API started")
		if err := control.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("control API failed")
		}
	}()

	go func() {
		if err := ctrl.Start(ctx); err != nil {
			// Setup failures stay on screen for a retry; redirects finish the session.
			log.Warn().Err(err).Str("phase", ctrl.Phase().String()).Msg("session bootstrap did not start the interview")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case <-ctrl.Finished():
		log.Info().Str("phase", ctrl.Phase().String()).Msg("interview session finished")
	}

	shutdown(ctrl, health, grpcServer, control, obs, bus, publisher, narrationCache)
	application.Shutdown()
}

func shutdown(
	ctrl *session.Controller,
	health *grpcapi.Health,
	grpcServer *grpc.Server,
	control *http.Server,
	obs *observability.Server,
	bus *events.Bus,
	publisher *events.Publisher,
	narrationCache cache.Cache,
) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = ctrl.Close()
	health.Shutdown()

	// Health Watch streams keep GracefulStop waiting until clients hang up.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		grpcServer.Stop()
	}

	if err := control.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("control API shutdown")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("observability server shutdown")
	}

	// Drain queued events before closing the Kafka writers.
	bus.Close()
	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("kafka publisher close")
	}
	if err := narrationCache.Close(); err != nil {
		log.Warn().Err(err).Msg("narration cache close")
	}
}
