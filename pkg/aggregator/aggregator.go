// Package aggregator computes per-output and per-model composite scores,
// bootstrap confidence intervals, facet breakdowns, pairwise win-rate
// matrices, and convergence deltas across iterations. Everything here
// is a pure function over score slices; resampling uses math/rand with
// a caller-supplied source so results are reproducible.
package aggregator

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/edison-llm/edison/pkg/model"
)

// DefaultScale multiplies the [0,1] normalized composite for display.
const DefaultScale = 10.0

// DefaultBootstrapResamples is the default B for confidence intervals.
const DefaultBootstrapResamples = 1000

// Epsilon guards the convergence percentage-delta denominator.
const Epsilon = 1e-9

// LengthBucket names a pre-configured prompt-plus-expected length range.
type LengthBucket string

const (
	BucketXS LengthBucket = "XS" // < 200
	BucketS  LengthBucket = "S"  // < 500
	BucketM  LengthBucket = "M"  // < 1500
	BucketL  LengthBucket = "L"  // < 5000
	BucketXL LengthBucket = "XL" // >= 5000
)

// ClassifyLength buckets a prompt-plus-expected character count into
// the fixed boundaries above.
func ClassifyLength(chars int) LengthBucket {
	switch {
	case chars < 200:
		return BucketXS
	case chars < 500:
		return BucketS
	case chars < 1500:
		return BucketM
	case chars < 5000:
		return BucketL
	default:
		return BucketXL
	}
}

// CompositeScore computes C(o) = Σ w_i · normalize(score_i, scale_i) * scale
// for one judgment's criterion scores. A criterion absent from scores
// contributes 0 (worst-case).
func CompositeScore(rubric model.Rubric, scores map[string]int, scale float64) float64 {
	if scale <= 0 {
		scale = DefaultScale
	}
	var total float64
	for _, c := range rubric.Criteria {
		s, ok := scores[c.Name]
		if !ok {
			continue
		}
		norm := normalize(float64(s), float64(c.ScaleMin), float64(c.ScaleMax))
		total += c.Weight * norm
	}
	return total * scale
}

func normalize(s, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return (s - lo) / (hi - lo)
}

// OutputScore pairs an output id with its composite score, the unit
// bootstrap resampling and facet breakdowns operate over.
type OutputScore struct {
	OutputID   string
	ModelRunID string
	ModelID    string
	Tags       []string
	Difficulty int
	Length     int
	Composite  float64
	CostUSD    float64
	CreatedAt  int64 // unix nanos, used only for creation-order tie-break
}

// ModelRanking is one model's aggregated standing within an iteration.
type ModelRanking struct {
	ModelID   string
	Composite float64
	CI        model.CI
	CostUSD   float64
}

// PerModelComposite computes, for each model, the mean composite across
// its outputs.
func PerModelComposite(scores []OutputScore) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range scores {
		sums[s.ModelID] += s.Composite
		counts[s.ModelID]++
	}
	out := map[string]float64{}
	for model, sum := range sums {
		out[model] = sum / float64(counts[model])
	}
	return out
}

// RankModels orders models by composite descending, breaking ties by
// lower cost then earlier model-run creation time.
func RankModels(scores []OutputScore) []ModelRanking {
	composite := PerModelComposite(scores)
	costs := map[string]float64{}
	earliest := map[string]int64{}
	for _, s := range scores {
		costs[s.ModelID] += s.CostUSD
		if existing, ok := earliest[s.ModelID]; !ok || s.CreatedAt < existing {
			earliest[s.ModelID] = s.CreatedAt
		}
	}

	rankings := make([]ModelRanking, 0, len(composite))
	for m, c := range composite {
		rankings = append(rankings, ModelRanking{ModelID: m, Composite: c, CostUSD: costs[m]})
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Composite != rankings[j].Composite {
			return rankings[i].Composite > rankings[j].Composite
		}
		if rankings[i].CostUSD != rankings[j].CostUSD {
			return rankings[i].CostUSD < rankings[j].CostUSD
		}
		return earliest[rankings[i].ModelID] < earliest[rankings[j].ModelID]
	})
	return rankings
}

// BootstrapCI computes a non-parametric percentile bootstrap confidence
// interval over the composite scores in values. B defaults to
// DefaultBootstrapResamples and level to 0.95 when not positive.
func BootstrapCI(values []float64, b int, level float64, rng *rand.Rand) model.CI {
	if len(values) == 0 {
		return model.CI{}
	}
	if b <= 0 {
		b = DefaultBootstrapResamples
	}
	if level <= 0 || level >= 1 {
		level = 0.95
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	n := len(values)
	means := make([]float64, b)
	for i := 0; i < b; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += values[rng.Intn(n)]
		}
		means[i] = sum / float64(n)
	}
	sort.Float64s(means)

	tail := (1 - level) / 2
	lowerIdx := int(math.Floor(tail * float64(b)))
	upperIdx := int(math.Ceil((1 - tail) * float64(b)))
	if upperIdx >= b {
		upperIdx = b - 1
	}
	if lowerIdx < 0 {
		lowerIdx = 0
	}
	return model.CI{Lower: means[lowerIdx], Upper: means[upperIdx]}
}

// FacetBreakdown maps a facet bucket name to the mean composite of
// outputs in that bucket.
type FacetBreakdown map[string]float64

// BreakdownByTag groups outputs by each tag they carry and computes the
// mean composite per tag. An output with multiple tags contributes to
// each tag's bucket.
func BreakdownByTag(scores []OutputScore) FacetBreakdown {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range scores {
		for _, tag := range s.Tags {
			sums[tag] += s.Composite
			counts[tag]++
		}
	}
	return meanMap(sums, counts)
}

// BreakdownByLength groups outputs into the fixed length buckets.
func BreakdownByLength(scores []OutputScore) FacetBreakdown {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range scores {
		bucket := string(ClassifyLength(s.Length))
		sums[bucket] += s.Composite
		counts[bucket]++
	}
	return meanMap(sums, counts)
}

// BreakdownByDifficulty groups outputs by their case difficulty level.
func BreakdownByDifficulty(scores []OutputScore) FacetBreakdown {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range scores {
		key := difficultyKey(s.Difficulty)
		sums[key] += s.Composite
		counts[key]++
	}
	return meanMap(sums, counts)
}

func meanMap(sums map[string]float64, counts map[string]int) FacetBreakdown {
	out := make(FacetBreakdown, len(sums))
	for k, sum := range sums {
		out[k] = sum / float64(counts[k])
	}
	return out
}

func difficultyKey(d int) string {
	return strconv.Itoa(d)
}

// PairStats accumulates wins/losses/ties for one ordered model pair.
type PairStats struct {
	ModelA, ModelB string
	Wins, Losses, Ties int
}

// WinRate returns (wins + 0.5*ties) / total, or 0 when no comparisons
// were recorded.
func (p PairStats) WinRate() float64 {
	total := p.Wins + p.Losses + p.Ties
	if total == 0 {
		return 0
	}
	return (float64(p.Wins) + 0.5*float64(p.Ties)) / float64(total)
}

// PairwiseJudgment is the minimal shape aggregation needs from a
// pairwise model.Judgment, with model ids resolved from output->model
// lookups the caller performs before calling BuildWinRateMatrix.
type PairwiseJudgment struct {
	ModelA, ModelB string
	Winner         model.PairwiseWinner
}

// BuildWinRateMatrix computes win/loss/tie counts for every ordered
// model pair that appears in judgments.
func BuildWinRateMatrix(judgments []PairwiseJudgment) map[string]*PairStats {
	matrix := make(map[string]*PairStats)
	key := func(a, b string) string { return a + "|" + b }

	ensure := func(a, b string) *PairStats {
		k := key(a, b)
		if _, ok := matrix[k]; !ok {
			matrix[k] = &PairStats{ModelA: a, ModelB: b}
		}
		return matrix[k]
	}

	for _, j := range judgments {
		ab := ensure(j.ModelA, j.ModelB)
		ba := ensure(j.ModelB, j.ModelA)
		switch j.Winner {
		case model.WinnerA:
			ab.Wins++
			ba.Losses++
		case model.WinnerB:
			ab.Losses++
			ba.Wins++
		default:
			ab.Ties++
			ba.Ties++
		}
	}
	return matrix
}

// Delta is the change in composite score between two successive
// iterations.
type Delta struct {
	Absolute   float64
	Percentage float64
}

// ComputeDelta computes absolute and percentage change, guarding the
// denominator with Epsilon.
func ComputeDelta(previous, current float64) Delta {
	abs := current - previous
	denom := math.Max(previous, Epsilon)
	return Delta{Absolute: abs, Percentage: abs / denom}
}

// HasConverged reports whether the last convergenceWindow deltas are
// all below minDeltaThreshold. deltas is ordered oldest-to-newest.
func HasConverged(deltas []Delta, minDeltaThreshold float64, convergenceWindow int) bool {
	if convergenceWindow <= 0 || len(deltas) < convergenceWindow {
		return false
	}
	window := deltas[len(deltas)-convergenceWindow:]
	for _, d := range window {
		if math.Abs(d.Percentage) >= minDeltaThreshold {
			return false
		}
	}
	return true
}
