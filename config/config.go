// Package config loads the engine configuration. Precedence: built-in
// defaults, then the YAML file, then SWARMFLOW_-prefixed environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full engine configuration.
type Config struct {
	Workers    WorkersConfig    `yaml:"workers" env:"WORKERS"`
	Validation ValidationConfig `yaml:"validation" env:"VALIDATION"`
	Debate     DebateConfig     `yaml:"debate" env:"DEBATE"`
	Handoff    HandoffConfig    `yaml:"handoff" env:"HANDOFF"`
	Search     SearchConfig     `yaml:"search" env:"SEARCH"`
	Cache      CacheConfig      `yaml:"cache" env:"CACHE"`
	Run        RunConfig        `yaml:"run" env:"RUN"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
}

// WorkersConfig bounds the collection and validation fan-out.
type WorkersConfig struct {
	MaxConcurrentWorkers int           `yaml:"max_concurrent_workers" env:"MAX_CONCURRENT_WORKERS"`
	PerWorkerTimeout     time.Duration `yaml:"per_worker_timeout" env:"PER_WORKER_TIMEOUT"`
	SignalFloor          int           `yaml:"signal_floor" env:"SIGNAL_FLOOR"`
}

// ValidationConfig weights the cross-validation score.
type ValidationConfig struct {
	ConfidenceWeight   float64 `yaml:"confidence_weight" env:"CONFIDENCE_WEIGHT"`
	StrengthWeight     float64 `yaml:"strength_weight" env:"STRENGTH_WEIGHT"`
	MinValidationScore float64 `yaml:"min_validation_score" env:"MIN_VALIDATION_SCORE"`
	VerificationBoost  float64 `yaml:"verification_boost" env:"VERIFICATION_BOOST"`
}

// DebateConfig bounds the arbitration loop.
type DebateConfig struct {
	Rounds            int     `yaml:"rounds" env:"ROUNDS"`
	ExtendedRounds    int     `yaml:"extended_rounds" env:"EXTENDED_ROUNDS"`
	ConflictThreshold int     `yaml:"conflict_threshold" env:"CONFLICT_THRESHOLD"`
	StrengthStep      float64 `yaml:"strength_step" env:"STRENGTH_STEP"`
	RoundDecay        float64 `yaml:"round_decay" env:"ROUND_DECAY"`
	MaxAdjustment     float64 `yaml:"max_adjustment" env:"MAX_ADJUSTMENT"`
	MaxPointsPerRound int     `yaml:"max_points_per_round" env:"MAX_POINTS_PER_ROUND"`
	VerifiedOnly      bool    `yaml:"verified_only" env:"VERIFIED_ONLY"`
}

// HandoffConfig bounds the sub-question router.
type HandoffConfig struct {
	MaxPerRole      int           `yaml:"max_per_role" env:"MAX_PER_ROLE"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" env:"DISPATCH_TIMEOUT"`
	MaxRoutes       int           `yaml:"max_routes" env:"MAX_ROUTES"`
}

// SearchConfig selects the aggregation policy and per-provider settings.
type SearchConfig struct {
	Mode            string         `yaml:"mode" env:"MODE"`
	MaxResults      int            `yaml:"max_results" env:"MAX_RESULTS"`
	ProviderTimeout time.Duration  `yaml:"provider_timeout" env:"PROVIDER_TIMEOUT"`
	Priorities      map[string]int `yaml:"priorities" env:"-"`
}

// CacheConfig selects the store behind the search aggregator.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
	Store   string        `yaml:"store" env:"STORE"` // memory or redis
	Addr    string        `yaml:"addr" env:"ADDR"`
	DB      int           `yaml:"db" env:"DB"`
}

// RunConfig bounds a whole run.
type RunConfig struct {
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MetricsListen string        `yaml:"metrics_listen" env:"METRICS_LISTEN"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Encoding string `yaml:"encoding" env:"ENCODING"` // json or console
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers: WorkersConfig{
			MaxConcurrentWorkers: 4,
			PerWorkerTimeout:     2 * time.Minute,
			SignalFloor:          8,
		},
		Validation: ValidationConfig{
			ConfidenceWeight:   0.70,
			StrengthWeight:     0.30,
			MinValidationScore: 0.75,
			VerificationBoost:  0.2,
		},
		Debate: DebateConfig{
			Rounds:            3,
			ExtendedRounds:    5,
			ConflictThreshold: 5,
			StrengthStep:      0.3,
			RoundDecay:        0.8,
			MaxAdjustment:     0.6,
			MaxPointsPerRound: 5,
			VerifiedOnly:      false,
		},
		Handoff: HandoffConfig{
			MaxPerRole:      3,
			DispatchTimeout: 30 * time.Second,
			MaxRoutes:       2,
		},
		Search: SearchConfig{
			Mode:            "priority",
			MaxResults:      20,
			ProviderTimeout: 10 * time.Second,
			Priorities:      map[string]int{},
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
			Store:   "memory",
			Addr:    "localhost:6379",
		},
		Run: RunConfig{
			Timeout: 20 * time.Minute,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Workers.MaxConcurrentWorkers <= 0 {
		errs = append(errs, "workers.max_concurrent_workers must be positive")
	}
	if c.Workers.PerWorkerTimeout <= 0 {
		errs = append(errs, "workers.per_worker_timeout must be positive")
	}
	if c.Validation.ConfidenceWeight < 0 || c.Validation.StrengthWeight < 0 {
		errs = append(errs, "validation weights must not be negative")
	}
	if c.Validation.MinValidationScore < 0 {
		errs = append(errs, "validation.min_validation_score must not be negative")
	}
	if c.Debate.Rounds <= 0 {
		errs = append(errs, "debate.rounds must be positive")
	}
	if c.Debate.ExtendedRounds < c.Debate.Rounds {
		errs = append(errs, "debate.extended_rounds must not be below debate.rounds")
	}
	if c.Debate.RoundDecay <= 0 || c.Debate.RoundDecay > 1 {
		errs = append(errs, "debate.round_decay must be in (0, 1]")
	}
	if c.Debate.MaxAdjustment <= 0 {
		errs = append(errs, "debate.max_adjustment must be positive")
	}
	switch c.Search.Mode {
	case "priority", "parallel", "all":
	default:
		errs = append(errs, fmt.Sprintf("search.mode %q is not one of priority/parallel/all", c.Search.Mode))
	}
	switch c.Cache.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("cache.store %q is not one of memory/redis", c.Cache.Store))
	}
	if c.Run.Timeout <= 0 {
		errs = append(errs, "run.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
