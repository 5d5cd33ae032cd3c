package measure

import (
	"math"
	"sort"

	"github.com/ethereum-optimism/infra/op-bench/suite"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

// tTable holds two-sided 95% critical values of Student's t-distribution
// indexed by degrees of freedom.
var tTable = []float64{
	1: 12.706, 2: 4.303, 3: 3.182, 4: 2.776, 5: 2.571, 6: 2.447, 7: 2.365, 8: 2.306,
	9: 2.262, 10: 2.228, 11: 2.201, 12: 2.179, 13: 2.16, 14: 2.145, 15: 2.131,
	16: 2.12, 17: 2.11, 18: 2.101, 19: 2.093, 20: 2.086, 21: 2.08, 22: 2.074,
	23: 2.069, 24: 2.064, 25: 2.06, 26: 2.056, 27: 2.052, 28: 2.048, 29: 2.045,
	30: 2.042,
}

const tInfinity = 1.96

func criticalValue(df int) float64 {
	if df <= 0 {
		return 0
	}
	if df < len(tTable) {
		return tTable[df]
	}
	return tInfinity
}

// percentile returns the p-th percentile (0-100) of sorted using linear
// interpolation between the closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// computeStats summarises sample durations expressed in seconds.
func computeStats(sample []float64) types.Stats {
	stats := types.Stats{Sample: append([]float64(nil), sample...)}
	n := len(sample)
	if n == 0 {
		return stats
	}

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sample {
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	if n > 1 {
		for _, v := range sample {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(n - 1)
	}

	stats.Mean = mean
	stats.Variance = variance
	stats.Deviation = math.Sqrt(variance)
	stats.Sem = stats.Deviation / math.Sqrt(float64(n))
	stats.Moe = stats.Sem * criticalValue(n-1)
	if mean > 0 {
		stats.Rme = stats.Moe / mean * 100
	}
	stats.Min = sorted[0]
	stats.Max = sorted[n-1]
	stats.Median = percentile(sorted, 50)
	stats.P75 = percentile(sorted, 75)
	stats.P95 = percentile(sorted, 95)
	stats.P99 = percentile(sorted, 99)
	stats.P999 = percentile(sorted, 99.9)
	stats.SingleMean = mean
	return stats
}

// singleMean is the mean cost of one request slot. In parallel mode up to
// MaxConcurrentRequests requests share the time, so the mean is divided by it.
func singleMean(mean float64, opts suite.Options) float64 {
	if opts.RunMode != suite.RunModeParallel || opts.MaxConcurrentRequests <= 1 {
		return mean
	}
	return mean / float64(opts.MaxConcurrentRequests)
}
