package detect

import (
	"math"
	"sort"
)

// rangeTol is the merge tolerance at a given bearing: wider off boresight,
// where angular resolution degrades, capped at the configured maximum.
func rangeTol(angleDeg float64, p Params) float64 {
	bucket := math.Floor(math.Abs(angleDeg) / p.AngleBucketDeg)
	return math.Min(p.BaseRangeTol+bucket*p.StepPerBucket, p.MaxRangeTol)
}

// Compact reduces the per-beam peak lists to the reported detection list:
// per-beam range floor and top-K cap, then a range-sorted sweep that merges
// peaks within the angle-adaptive tolerance into one detection each.
func Compact(peaksPerBeam [][]Peak, angleBins []float64, p Params) []Detection {
	var flat []Peak
	for _, beamPeaks := range peaksPerBeam {
		kept := make([]Peak, 0, len(beamPeaks))
		for _, peak := range beamPeaks {
			if peak.RangeMeters >= p.MinRangeHard {
				kept = append(kept, peak)
			}
		}
		if p.TopK > 0 && len(kept) > p.TopK {
			sort.SliceStable(kept, func(i, j int) bool {
				return kept[i].Energy > kept[j].Energy
			})
			kept = kept[:p.TopK]
		}
		flat = append(flat, kept...)
	}
	if len(flat) == 0 {
		return nil
	}

	sort.SliceStable(flat, func(i, j int) bool {
		if flat[i].RangeMeters != flat[j].RangeMeters {
			return flat[i].RangeMeters < flat[j].RangeMeters
		}
		return flat[i].Energy > flat[j].Energy
	})

	// Sweep in range order; a peak joins the open group when it is within
	// the larger of its own and the group anchor's tolerance.
	var out []Detection
	var group []Peak
	flush := func() {
		if len(group) > 0 {
			out = append(out, reduceGroup(group, angleBins, p))
			group = group[:0]
		}
	}
	for _, peak := range flat {
		if len(group) > 0 {
			last := group[len(group)-1]
			tol := math.Max(
				rangeTol(angleBins[peak.Beam], p),
				rangeTol(angleBins[last.Beam], p),
			)
			if math.Abs(peak.RangeMeters-last.RangeMeters) > tol {
				flush()
			}
		}
		group = append(group, peak)
	}
	flush()
	return out
}

// reduceGroup collapses one merged group into a single detection. NMS mode
// reports the strongest member verbatim; cluster mode reports its range with
// the energy-weighted mean bearing of the whole group.
func reduceGroup(group []Peak, angleBins []float64, p Params) Detection {
	best := group[0]
	for _, peak := range group[1:] {
		if peak.Energy > best.Energy {
			best = peak
		}
	}

	if p.Mode == ModeCluster && len(group) > 1 {
		var sumE, sumEA float64
		for _, peak := range group {
			sumE += peak.Energy
			sumEA += peak.Energy * angleBins[peak.Beam]
		}
		return Detection{
			RangeMeters:  best.RangeMeters,
			AngleDegrees: sumEA / (sumE + 1e-9),
			Energy:       best.Energy,
		}
	}

	return Detection{
		RangeMeters:  best.RangeMeters,
		AngleDegrees: angleBins[best.Beam],
		Energy:       best.Energy,
	}
}
