package app

import (
	"time"

	"github.com/rs/zerolog"

	"ascend-interview-agent/internal/config"
	"ascend-interview-agent/internal/observability/logging"
)

// Application holds process-wide state for the agent.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Ascend interview agent application created")
	return a
}

// setupLogger configures the global zerolog logger for the agent.
func (a *Application) setupLogger() {
	obs := a.Cfg.Observability
	logging.Init(logging.Config{
		Level:  obs.LogLevel,
		Format: obs.LogFormat,
		File:   obs.LogFile,
	})

	a.Logger = logging.Logger().With().
		Str("service", a.Cfg.Service.Principal).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", obs.LogFormat).
		Bool("logFile", obs.LogFile != "").
		Msg("Logger setup completed")
}

// Start records the startup time and logs the effective interview settings.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("interviewId", a.Cfg.Interview.ID).
		Str("type", a.Cfg.Interview.Type).
		Str("difficulty", a.Cfg.Interview.Difficulty).
		Str("sttProvider", a.Cfg.STT.Provider).
		Bool("kafka", a.Cfg.Kafka.Enabled).
		Msg("Ascend interview agent starting")

	return nil
}

// Uptime is the time since Start.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Dur("uptime", a.Uptime()).Msg("Ascend interview agent shutting down")
}
