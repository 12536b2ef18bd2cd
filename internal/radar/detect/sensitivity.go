package detect

import "math"

// SensitivityGain is the extra amplification applied on the more-sensitive
// side of neutral, making the response asymmetric around 0.5.
const SensitivityGain = 1.5

// ParamsForSensitivity maps a single sensitivity control s in [0, 1]
// (0.5 = neutral) to the full detector parameter set. Pure function: same
// input, same output, no state.
func ParamsForSensitivity(s float64) Params {
	s = math.Max(0.0, math.Min(1.0, s))
	x := s - 0.5
	if x > 0 {
		x *= SensitivityGain
	}

	p := DefaultParams()

	// Higher sensitivity lowers the threshold floor; keep the swing modest
	// to avoid harming long range.
	p.BaseThreshold = 0.05 + (-0.02)*x

	switch {
	case math.Abs(x) < 0.05:
		p.TopK = 3
	case x > 0:
		p.TopK = 4 // allow one more hit when more sensitive
	default:
		p.TopK = 2 // a bit stricter when less sensitive
	}

	p.MinRangeHard = 1.0 + (-0.3)*x
	p.BaseRangeTol = 0.20 + 0.10*x
	p.StepPerBucket = 0.50 + 0.20*x
	p.AngleBucketDeg = 10.0
	p.MaxRangeTol = 2.0
	p.Mode = ModeNMS

	// Widen the notch when less sensitive.
	if x >= 0 {
		p.DopplerTolNormal, p.DopplerTolFast = 1, 2
	} else {
		p.DopplerTolNormal, p.DopplerTolFast = 2, 3
	}

	// Asymmetric motion thresholds: more sensitive enters fast-motion
	// handling at a lower platform speed.
	if x > 0 {
		p.FastSpeed, p.SlowSpeed = 0.1, 0.07
	} else {
		p.FastSpeed, p.SlowSpeed = 0.2, 0.07
	}
	p.RequirePersistence = true

	return p
}
