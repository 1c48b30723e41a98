package scheduler

import "sort"

// Mode selects the weighting profile suggest_windows uses to trade off
// cost (spread/volatility) against opportunity (volume).
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeNeutral      Mode = "neutral"
	ModeAggressive   Mode = "aggressive"
)

// weights returns (w_spread, w_vola, w_vol) for a mode. Conservative
// weighs cost avoidance (spread, volatility) most heavily; aggressive
// weighs volume opportunity most heavily; neutral splits evenly.
func weightsFor(mode Mode) (wSpread, wVola, wVol float64) {
	switch mode {
	case ModeConservative:
		return 0.45, 0.45, 0.10
	case ModeAggressive:
		return 0.15, 0.15, 0.70
	default: // ModeNeutral and unrecognised values
		return 0.34, 0.33, 0.33
	}
}

// BucketStats is one hour-bucket's observed statistics, keyed by a
// caller-defined bucket key (e.g. "Mon-14" for Monday 2pm UTC).
type BucketStats struct {
	Key        string
	SpreadBps  float64
	VolaBps    float64
	VolumeNorm float64 // already normalised to [0,1]
	Sample     int
}

// Suggestion is one ranked output entry.
type Suggestion struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// SuggestWindows scores each bucket, drops buckets below minSample, and
// returns the top-k by score, breaking ties lexicographically on bucket
// key to guarantee byte-stable output.
func SuggestWindows(stats []BucketStats, mode Mode, minSample, topK int) []Suggestion {
	wSpread, wVola, wVol := weightsFor(mode)

	var out []Suggestion
	for _, b := range stats {
		if b.Sample < minSample {
			continue
		}
		spreadTerm := 1 - min1(b.SpreadBps/50)
		volaTerm := 1 - min1(b.VolaBps/100)
		volTerm := min1(b.VolumeNorm)
		score := wSpread*spreadTerm + wVola*volaTerm + wVol*volTerm
		out = append(out, Suggestion{Key: b.Key, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})

	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
