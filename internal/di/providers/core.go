// Package providers contains the dependency injection providers for the library server.
package providers

import (
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/JoeAtEgypt/library-management/internal/auth"
	"github.com/JoeAtEgypt/library-management/internal/config"
	"github.com/JoeAtEgypt/library-management/internal/logger"
)

// shutdownTimeout bounds every graceful stop: HTTP drain, dispatcher drain, hub close.
const shutdownTimeout = 30 * time.Second

// ProvideConfig loads configuration from flags, environment and .env.
func ProvideConfig(do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger builds the process logger. Development gets the pretty
// handler with source locations; production gets JSON.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Writer:      os.Stdout,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
	})

	log.Info("Library server configured",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Metadata.BasePath,
		"db_driver", cfg.Database.Driver,
		"mail_backend", cfg.Mail.Backend,
		"reminders", cfg.Reminder.Enabled,
	)
	return log, nil
}

// ProvideTokenService loads the PASETO key from the data directory, creating
// it on first start, and returns the access token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if len(cfg.Auth.AccessTokenKey) == 0 {
		key, err := auth.LoadOrGenerateKey(cfg.Metadata.BasePath)
		if err != nil {
			return nil, err
		}
		cfg.Auth.AccessTokenKey = key
	}

	tokens, err := auth.NewTokenService(cfg.Auth.AccessTokenKey, cfg.Auth.AccessTokenDuration)
	if err != nil {
		return nil, err
	}

	log.Info("Token service ready", "access_token_duration", cfg.Auth.AccessTokenDuration)
	return tokens, nil
}
