// Package config holds the tunable constants of the iterator core.
//
// None of these values affect results, only which strategy produces them
// and how much budget each step is charged.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (GRAPHD_SAMPLE_TARGET=8)
const EnvPrefix = "GRAPHD"

// Tuning carries cost constants and strategy thresholds
type Tuning struct {
	// Statistics
	SampleTarget int `mapstructure:"sample_target"` // samples pulled per method before deciding

	// Per-record costs, in budget units
	CostPrimitive int64 `mapstructure:"cost_primitive"` // read one primitive record
	CostLinkage   int64 `mapstructure:"cost_linkage"`   // follow one linkage pointer
	CostIndexOpen int64 `mapstructure:"cost_index_open"`
	CostArrayStep int64 `mapstructure:"cost_array_step"`
	CostCacheHit  int64 `mapstructure:"cost_cache_hit"`

	// Evolution
	InlineMax      int   `mapstructure:"inline_max"`        // become a fixed array at or below this size
	OrMax          int   `mapstructure:"or_max"`            // become an OR of per-source lookups at or below this many sources
	MasqueradeMin  int   `mapstructure:"masquerade_min"`    // keep a masquerade only for arrays longer than this
	PreEvalMaxCost int64 `mapstructure:"pre_eval_max_cost"` // creation-time budget for eager evaluation

	// isa duplicate elimination
	IsaIntersectThreshold     int64 `mapstructure:"isa_intersect_threshold"`      // projected n above which intersect is used
	IsaIntersectThawThreshold int64 `mapstructure:"isa_intersect_thaw_threshold"` // same, for thawed iterators
	IsaCacheFreezeMax         int   `mapstructure:"isa_cache_freeze_max"`         // largest cache serialized into a cursor
	CheckCacheSize            int   `mapstructure:"check_cache_size"`

	// linksto
	RacePreferShare float64 `mapstructure:"race_prefer_share"` // budget share for the preferred method
	StatsBudget     int64   `mapstructure:"stats_budget"`

	// Original-instance cache
	OriginalCacheSize int           `mapstructure:"original_cache_size"`
	OriginalCacheTTL  time.Duration `mapstructure:"original_cache_ttl"`
}

// Default returns the built-in tuning
func Default() Tuning {
	return Tuning{
		SampleTarget: 5,

		CostPrimitive: 10,
		CostLinkage:   2,
		CostIndexOpen: 20,
		CostArrayStep: 1,
		CostCacheHit:  1,

		InlineMax:      20,
		OrMax:          100,
		MasqueradeMin:  5,
		PreEvalMaxCost: 2000,

		IsaIntersectThreshold:     10000,
		IsaIntersectThawThreshold: 100000,
		IsaCacheFreezeMax:         1000,
		CheckCacheSize:            16,

		RacePreferShare: 0.75,
		StatsBudget:     5000,

		OriginalCacheSize: 1024,
		OriginalCacheTTL:  5 * time.Minute,
	}
}

// SetDefaults registers the built-in values with v so that file and
// environment overrides merge on top of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("sample_target", d.SampleTarget)
	v.SetDefault("cost_primitive", d.CostPrimitive)
	v.SetDefault("cost_linkage", d.CostLinkage)
	v.SetDefault("cost_index_open", d.CostIndexOpen)
	v.SetDefault("cost_array_step", d.CostArrayStep)
	v.SetDefault("cost_cache_hit", d.CostCacheHit)
	v.SetDefault("inline_max", d.InlineMax)
	v.SetDefault("or_max", d.OrMax)
	v.SetDefault("masquerade_min", d.MasqueradeMin)
	v.SetDefault("pre_eval_max_cost", d.PreEvalMaxCost)
	v.SetDefault("isa_intersect_threshold", d.IsaIntersectThreshold)
	v.SetDefault("isa_intersect_thaw_threshold", d.IsaIntersectThawThreshold)
	v.SetDefault("isa_cache_freeze_max", d.IsaCacheFreezeMax)
	v.SetDefault("check_cache_size", d.CheckCacheSize)
	v.SetDefault("race_prefer_share", d.RacePreferShare)
	v.SetDefault("stats_budget", d.StatsBudget)
	v.SetDefault("original_cache_size", d.OriginalCacheSize)
	v.SetDefault("original_cache_ttl", d.OriginalCacheTTL)
}

// New returns a viper instance with defaults and GRAPHD_ environment
// overrides wired up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (yaml, toml or json, by extension) if it is non-empty and
// returns the merged tuning.
func Load(path string) (Tuning, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Tuning{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the tuning held by v
func FromViper(v *viper.Viper) (Tuning, error) {
	var t Tuning
	if err := v.Unmarshal(&t); err != nil {
		return Tuning{}, fmt.Errorf("failed to decode tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// Validate rejects settings that would stall the iterators
func (t Tuning) Validate() error {
	switch {
	case t.SampleTarget < 1:
		return fmt.Errorf("sample_target must be at least 1, got %d", t.SampleTarget)
	case t.CostPrimitive < 1 || t.CostArrayStep < 1:
		return fmt.Errorf("per-record costs must be positive")
	case t.InlineMax < 0 || t.OrMax < t.InlineMax:
		return fmt.Errorf("or_max (%d) must be at least inline_max (%d)", t.OrMax, t.InlineMax)
	case t.RacePreferShare <= 0 || t.RacePreferShare >= 1:
		return fmt.Errorf("race_prefer_share must be in (0, 1), got %v", t.RacePreferShare)
	case t.StatsBudget < 1:
		return fmt.Errorf("stats_budget must be positive")
	}
	return nil
}
