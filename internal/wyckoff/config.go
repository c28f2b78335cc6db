package wyckoff

// ScoreWeights are the sub-signal weights of a composite event score. The
// score of an event is the weighted sum of its sub-signal fractions, each
// clamped to [0,1], so the maximum score is the sum of the weights.
type ScoreWeights struct {
	Volume        float64 `mapstructure:"volume"`
	Range         float64 `mapstructure:"range"`
	CloseLocation float64 `mapstructure:"close_location"`
	Divergence    float64 `mapstructure:"divergence"`
}

// Max returns the maximum attainable score.
func (w ScoreWeights) Max() float64 {
	return w.Volume + w.Range + w.CloseLocation + w.Divergence
}

// Config holds every tunable of the detector. None of these values appear
// as literals in the detector body.
type Config struct {
	// Lookback windows.
	MinLookback     int `mapstructure:"min_lookback"`
	MaxLookback     int `mapstructure:"max_lookback"`
	VolumeAvgPeriod int `mapstructure:"volume_avg_period"`
	ATRPeriod       int `mapstructure:"atr_period"`
	MomentumPeriod  int `mapstructure:"momentum_period"`
	SupportWindow   int `mapstructure:"support_window"`

	// Climax bars (SC and BC).
	ClimaxVolumeRatio float64 `mapstructure:"climax_volume_ratio"`

	// Automatic rally off a selling-climax low.
	ARMinRallyPct    float64 `mapstructure:"ar_min_rally_pct"`
	ARMaxVolumeRatio float64 `mapstructure:"ar_max_volume_ratio"`

	// Range-ceiling rejection after the rally.
	ARTopMaxCloseLoc float64 `mapstructure:"ar_top_max_close_loc"`

	// Springs and upthrusts (false breaks of the range).
	SpringMaxPenetrationPct float64 `mapstructure:"spring_max_penetration_pct"`
	SpringMaxVolumeRatio    float64 `mapstructure:"spring_max_volume_ratio"`
	UTMaxVolumeRatio        float64 `mapstructure:"ut_max_volume_ratio"`

	// Confirmations.
	SOSMinVolumeRatio float64 `mapstructure:"sos_min_volume_ratio"`
	SOWMinVolumeRatio float64 `mapstructure:"sow_min_volume_ratio"`

	// Composite scores. BCWeights sums to 28, SpringWeights to 12.
	BCWeights      ScoreWeights `mapstructure:"bc_weights"`
	BCMinScore     float64      `mapstructure:"bc_min_score"`
	SpringWeights  ScoreWeights `mapstructure:"spring_weights"`
	SpringMinScore float64      `mapstructure:"spring_min_score"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinLookback:     20,
		MaxLookback:     60,
		VolumeAvgPeriod: 20,
		ATRPeriod:       14,
		MomentumPeriod:  10,
		SupportWindow:   10,

		ClimaxVolumeRatio: 2.0,

		ARMinRallyPct:    0.03,
		ARMaxVolumeRatio: 1.2,

		ARTopMaxCloseLoc: 0.5,

		SpringMaxPenetrationPct: 0.02,
		SpringMaxVolumeRatio:    1.0,
		UTMaxVolumeRatio:        1.2,

		SOSMinVolumeRatio: 1.3,
		SOWMinVolumeRatio: 1.3,

		BCWeights:      ScoreWeights{Volume: 10, Range: 8, CloseLocation: 6, Divergence: 4},
		BCMinScore:     16,
		SpringWeights:  ScoreWeights{Volume: 5, Range: 4, CloseLocation: 3},
		SpringMinScore: 7,
	}
}
