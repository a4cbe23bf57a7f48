package mock

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/gormock/config"
	"github.com/kbukum/gormock/database"
	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

// Config configures a mock and the ephemeral store behind it.
type Config struct {
	Store   database.Config `mapstructure:"store"`
	Logging logger.Config   `mapstructure:"logging"`

	// SavepointPrefix prefixes the savepoint names of scopes.
	SavepointPrefix string `mapstructure:"savepoint_prefix" validate:"omitempty,alphanum,max=16"`

	// Async selects the AsyncProvider in Open-style helpers.
	Async bool `mapstructure:"async"`

	// WorkerQueue is the number of store operations an AsyncProvider buffers.
	WorkerQueue int `mapstructure:"worker_queue" validate:"gte=0,lte=1024"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	c.Store.ApplyDefaults()
	c.Logging.ApplyDefaults()
	if c.SavepointPrefix == "" {
		c.SavepointPrefix = "gormock"
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags, then the nested store and logging sections.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.InvalidInput(fe.Namespace(), fmt.Sprintf("failed on '%s' validation", fe.Tag())).WithCause(err)
		}
		return apperrors.Validation(err.Error()).WithCause(err)
	}
	if err := c.Store.Validate(); err != nil {
		return apperrors.InvalidInput("store", err.Error()).WithCause(err)
	}
	if err := c.Logging.Validate(); err != nil {
		return apperrors.InvalidInput("logging", err.Error()).WithCause(err)
	}
	return nil
}

// LoadConfig reads gormock.yml, .env and GORMOCK_* environment variables,
// applies defaults and validates the result.
func LoadConfig(opts ...config.LoaderOption) (Config, error) {
	var cfg Config
	if err := config.Load("gormock", &cfg, opts...); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
