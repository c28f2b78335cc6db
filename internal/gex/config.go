package gex

// Config holds every tunable of the calculator. Defaults come from
// DefaultConfig; the CLI may override the filter knobs per invocation.
type Config struct {
	// Contract filtering.
	MaxDTE          int   `mapstructure:"max_dte"`
	MinOpenInterest int64 `mapstructure:"min_open_interest"`
	MinVolume       int64 `mapstructure:"min_volume"`

	// Exposure convention. Per-contract exposure is
	// gamma * open_interest * Multiplier, signed CallSign for calls and
	// PutSign for puts. The default (+1 call, -1 put) assumes dealers are
	// net long calls and net short puts; flip PutSign to invert.
	Multiplier float64 `mapstructure:"multiplier"`
	CallSign   float64 `mapstructure:"call_sign"`
	PutSign    float64 `mapstructure:"put_sign"`

	// Derived metrics.
	WallsTopN        int        `mapstructure:"walls_top_n"`
	SlopeRangePct    float64    `mapstructure:"slope_range_pct"`
	NeutralThreshold float64    `mapstructure:"neutral_threshold"`
	DGPI             DGPIConfig `mapstructure:"dgpi"`

	// Confidence grading.
	HighMinEligible     int     `mapstructure:"high_min_eligible"`
	MediumMinEligible   int     `mapstructure:"medium_min_eligible"`
	MinGreeksCompletion float64 `mapstructure:"min_greeks_completion"`
}

// DGPIConfig pins down the Dealer Gamma Pressure Index normalization:
//
//	dgpi = clamp(w_net*tanh(net/net_scale)*100 + w_slope*tanh(slope/slope_scale)*100, -100, 100)
//
// The slope term is dropped when no slope could be computed.
type DGPIConfig struct {
	WNet       float64 `mapstructure:"w_net"`
	WSlope     float64 `mapstructure:"w_slope"`
	NetScale   float64 `mapstructure:"net_scale"`
	SlopeScale float64 `mapstructure:"slope_scale"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDTE:           90,
		MinOpenInterest:  100,
		MinVolume:        1,
		Multiplier:       100,
		CallSign:         1,
		PutSign:          -1,
		WallsTopN:        3,
		SlopeRangePct:    0.02,
		NeutralThreshold: 1e6,
		DGPI: DGPIConfig{
			WNet:       0.7,
			WSlope:     0.3,
			NetScale:   1e8,
			SlopeScale: 1e6,
		},
		HighMinEligible:     25,
		MediumMinEligible:   10,
		MinGreeksCompletion: 0.9,
	}
}
