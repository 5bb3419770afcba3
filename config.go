package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Variant selects how mixture weights are shared across output dimensions.
type Variant string

const (
	// VariantShared uses one set of K weights for all output dimensions;
	// each component is a diagonal multivariate Gaussian.
	VariantShared Variant = "shared"

	// VariantIndependent gives every output dimension its own K weights;
	// each dimension is a univariate mixture.
	VariantIndependent Variant = "independent"
)

// Config is the full configuration of a run.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Train   TrainConfig   `yaml:"train"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig holds the network architecture.
type ModelConfig struct {
	// Name scopes every variable (<name>/hid_0/kernel, ...).
	Name string `yaml:"name" validate:"required"`

	XDim int `yaml:"x_dim" validate:"gt=0"`
	YDim int `yaml:"y_dim" validate:"gt=0"`

	// K is the number of mixture components.
	K int `yaml:"k" validate:"gt=0"`

	Hidden     []int      `yaml:"hidden" validate:"dive,gt=0"`
	Activation Activation `yaml:"activation" validate:"oneof=tanh relu sigmoid identity"`

	// SigMax switches the variance transform. Zero means σ² = exp(logvar);
	// positive means σ² = SigMax · sigRate · sigmoid(logvar).
	SigMax float64 `yaml:"sig_max" validate:"gte=0"`

	// ScheduleSigMax is accepted for compatibility. The sig-rate schedule
	// is applied whether or not it is set.
	ScheduleSigMax bool `yaml:"schedule_sig_max"`

	L2RegCoef float64 `yaml:"l2_reg_coef" validate:"gte=0"`
	Variant   Variant `yaml:"variant" validate:"oneof=shared independent"`

	// Verbose logs the variable and layer tables after construction.
	Verbose bool `yaml:"verbose"`
}

// TrainConfig holds the training loop hyperparameters.
type TrainConfig struct {
	MaxIter      int     `yaml:"max_iter" validate:"gt=0"`
	BatchSize    int     `yaml:"batch_size" validate:"gt=0"`
	PiThreshold  float64 `yaml:"pi_threshold" validate:"gte=0,lte=1"`
	ShowEvery    int     `yaml:"show_every" validate:"gt=0"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`

	// Optimizer is one of "rmsprop", "adam", "sgd".
	Optimizer string `yaml:"optimizer" validate:"oneof=rmsprop adam sgd"`

	// GradientClip bounds the global gradient norm; zero disables clipping.
	GradientClip float64 `yaml:"gradient_clip" validate:"gte=0"`

	Seed uint64 `yaml:"seed"`

	// PlotDir receives result and variance plots at every report.
	// Empty disables plotting.
	PlotDir string `yaml:"plot_dir"`

	// YLim bounds the y axis of result plots.
	YLim [2]float64 `yaml:"ylim"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// DefaultModelConfig returns the architecture of the reference model.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Name:       "mdn",
		XDim:       2,
		YDim:       1,
		K:          5,
		Hidden:     []int{32, 32},
		Activation: ActivationTanh,
		SigMax:     0,
		L2RegCoef:  1e-3,
		Variant:    VariantShared,
		Verbose:    true,
	}
}

// DefaultTrainConfig returns the reference training schedule.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		MaxIter:      10000,
		BatchSize:    256,
		PiThreshold:  0.1,
		ShowEvery:    10,
		LearningRate: 1e-3,
		Optimizer:    "rmsprop",
		GradientClip: 0,
		Seed:         1,
		YLim:         [2]float64{-3, 3},
	}
}

// DefaultConfig returns a complete configuration with defaults.
func DefaultConfig() Config {
	return Config{
		Model: DefaultModelConfig(),
		Train: DefaultTrainConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults and validates it.
// Fields absent from the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c.Train); err != nil {
		return fmt.Errorf("%w: train: %v", ErrInvalidConfig, err)
	}
	if c.Train.YLim[0] >= c.Train.YLim[1] {
		return fmt.Errorf("%w: train: ylim %v is empty", ErrInvalidConfig, c.Train.YLim)
	}
	if err := validate.Struct(c.Logging); err != nil {
		return fmt.Errorf("%w: logging: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the architecture.
func (m ModelConfig) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: model: %v", ErrInvalidConfig, err)
	}
	return nil
}
