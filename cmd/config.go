package cmd

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vuload/internal/runner"
	"vuload/internal/scenario"
	"vuload/internal/storage"
)

// RunConfig is everything `vuload run` reads from flags, the config file and
// VULOAD_* variables.
type RunConfig struct {
	BaseURL      string              `mapstructure:"base_url"`
	Plan         string              `mapstructure:"plan"`
	Username     string              `mapstructure:"username"`
	Password     string              `mapstructure:"password"`
	Stages       runner.Profile      `mapstructure:"-"`
	Thresholds   map[string][]string `mapstructure:"-"`
	Tick         time.Duration       `mapstructure:"tick"`
	GracefulStop time.Duration       `mapstructure:"graceful_stop"`
	Timeout      time.Duration       `mapstructure:"timeout"`
	MaxRPS       float64             `mapstructure:"max_rps"`
	Seed         uint64              `mapstructure:"seed"`
	ProductTypes int                 `mapstructure:"product_types"`
	LogLevel     string              `mapstructure:"log_level"`
	LogFormat    string              `mapstructure:"log_format"`
	Out          string              `mapstructure:"out"`
	MetricsAddr  string              `mapstructure:"metrics_addr"`
	History      string              `mapstructure:"history"`
	TUI          bool                `mapstructure:"tui"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:6565")
	v.SetDefault("plan", "smoke")
	v.SetDefault("username", "admin")
	v.SetDefault("password", "admin123")
	v.SetDefault("tick", runner.DefaultConfig().Tick)
	v.SetDefault("graceful_stop", runner.DefaultConfig().GracefulStop)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// loadRunConfig decodes v. Stages given as "duration:target" strings (the
// --stage flag) are accepted as well as a list of maps from the config file.
func loadRunConfig(v *viper.Viper) (RunConfig, error) {
	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	var err error
	switch s := v.Get("stages").(type) {
	case nil:
	case []string:
		cfg.Stages, err = parseStages(s)
	case []any:
		if specs, ok := allStrings(s); ok {
			cfg.Stages, err = parseStages(specs)
		} else if err = v.UnmarshalKey("stages", &cfg.Stages); err != nil {
			err = fmt.Errorf("%w: %v", runner.ErrInvalidProfile, err)
		}
	default:
		err = fmt.Errorf("%w: stages must be a list", runner.ErrInvalidProfile)
	}
	if err != nil {
		return cfg, err
	}

	cfg.Thresholds = v.GetStringMapStringSlice("thresholds")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func allStrings(items []any) ([]string, bool) {
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// parseStages reads "30s:10" style stage definitions.
func parseStages(specs []string) (runner.Profile, error) {
	var p runner.Profile
	for _, s := range specs {
		dur, target, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("%w: stage %q: want duration:target", runner.ErrInvalidProfile, s)
		}
		d, err := time.ParseDuration(dur)
		if err != nil {
			return nil, fmt.Errorf("%w: stage %q: %v", runner.ErrInvalidProfile, s, err)
		}
		n, err := strconv.Atoi(target)
		if err != nil {
			return nil, fmt.Errorf("%w: stage %q: %v", runner.ErrInvalidProfile, s, err)
		}
		p = append(p, runner.Stage{Duration: d, Target: n})
	}
	return p, nil
}

// resolvePlan looks up the named plan and applies the config overrides.
// Thresholds given for a metric replace the plan's list for that metric.
func resolvePlan(cfg RunConfig) (*scenario.Plan, error) {
	plan, err := scenario.LookupPlan(cfg.Plan)
	if err != nil {
		return nil, err
	}
	if len(cfg.Stages) > 0 {
		plan.Stages = cfg.Stages
	}
	if len(cfg.Thresholds) > 0 {
		merged := maps.Clone(plan.Thresholds)
		if merged == nil {
			merged = map[string][]string{}
		}
		maps.Copy(merged, cfg.Thresholds)
		plan.Thresholds = merged
	}
	if cfg.ProductTypes > 0 {
		plan.SeedProductTypes = cfg.ProductTypes
	}
	if err := plan.Stages.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// historyPath returns where runs are stored, or "" when history is off.
func historyPath(setting string) (string, error) {
	switch strings.ToLower(setting) {
	case "off", "false", "none":
		return "", nil
	case "":
		return storage.DefaultPath()
	default:
		return setting, nil
	}
}
