package detect

// Mode selects how a compaction group is reduced to one detection.
type Mode string

const (
	// ModeNMS emits the max-energy member of each group verbatim.
	ModeNMS Mode = "nms"
	// ModeCluster emits the energy-weighted mean angle with the max-energy
	// member's range.
	ModeCluster Mode = "cluster"
)

// Params is the complete tunable parameter set of the detection chain,
// produced once per cycle by the sensitivity mapper and passed by value into
// the detector. Immutable for the frame it applies to.
type Params struct {
	// Detection baseline.
	BaseThreshold float64 // floor under the adaptive threshold curve
	TopK          int     // per-beam peak cap; <= 0 means uncapped
	MinRangeHard  float64 // meters; peaks closer are dropped outright

	// Angle-scaled compaction.
	BaseRangeTol   float64 // meters at broadside
	StepPerBucket  float64 // meters added per angle bucket
	AngleBucketDeg float64 // bucket width in degrees
	MaxRangeTol    float64 // meters; cap on the grown tolerance
	Mode           Mode

	// Ego-motion Doppler notch.
	DopplerTolNormal int // +- bins in slow state
	DopplerTolFast   int // +- bins in fast state

	// Motion state machine (hysteresis: FastSpeed > SlowSpeed).
	FastSpeed          float64 // m/s; enter fast at or above
	SlowSpeed          float64 // m/s; leave fast at or below
	RequirePersistence bool    // fast state: require a near-range peak last frame

	// Far-range handling.
	FarStartMeters float64 // boost and threshold relax begin here
	SlopeDBPerM    float64 // boost slope
	MaxBoostDB     float64 // boost cap
	ThresholdRelax float64 // multiplier on the threshold curve beyond FarStartMeters

	// Slow-mover rescue.
	RescueEnable      bool
	RescueExcludeBins int     // bins excluded on each side of the notch centre
	RescueRelax       float64 // keep if outside-notch energy > relax * threshold
}

// DefaultParams is the neutral detector tuning (sensitivity 0.5 reproduces
// the baseline values; the motion thresholds here are the standalone
// detector defaults, which the sensitivity mapper overrides).
func DefaultParams() Params {
	return Params{
		BaseThreshold:      0.05,
		TopK:               3,
		MinRangeHard:       1.0,
		BaseRangeTol:       0.20,
		StepPerBucket:      0.50,
		AngleBucketDeg:     10.0,
		MaxRangeTol:        2.0,
		Mode:               ModeNMS,
		DopplerTolNormal:   1,
		DopplerTolFast:     2,
		FastSpeed:          0.6,
		SlowSpeed:          0.4,
		RequirePersistence: true,
		FarStartMeters:     6.5,
		SlopeDBPerM:        1.2,
		MaxBoostDB:         12.0,
		ThresholdRelax:     0.9,
		RescueEnable:       true,
		RescueExcludeBins:  1,
		RescueRelax:        0.90,
	}
}
