// Package trend fits candidate models over a monthly KPI series and picks
// the one with the best growth/fit score for presentation.
package trend

import (
	"math"

	"github.com/nicktill/journeyboard/pkg/config"
)

// ModelType identifies one candidate fitting strategy.
type ModelType string

const (
	ModelLinear       ModelType = "linear"
	ModelPolynomial2  ModelType = "polynomial2"
	ModelMovingAvg3   ModelType = "moving_avg_3"
	ModelMovingAvg6   ModelType = "moving_avg_6"
	ModelExpSmoothing ModelType = "exp_smoothing"

	// ModelInsufficient is the sentinel for series shorter than 2 points.
	ModelInsufficient ModelType = "insufficient_data"
)

// Candidate is one fitted model over a raw series, carrying the inputs so a
// caller can chart raw and fitted curves together.
type Candidate struct {
	ModelType    ModelType `json:"model_type"`
	FittedSeries []float64 `json:"fitted_series"`
	SlopeAtEnd   float64   `json:"slope_at_end"`
	GrowthRate   float64   `json:"growth_rate"`
	RSquared     float64   `json:"r_squared"`
	Score        float64   `json:"score"`

	Series []float64 `json:"series"`
	Labels []string  `json:"labels"`
}

// SelectBest fits every applicable candidate model over the series and
// returns the highest-scoring one. Models run in a fixed order and ties keep
// the earlier model, so the result is deterministic. Series shorter than 2
// points yield the insufficient-data sentinel with score 0.
func SelectBest(series []float64, labels []string) Candidate {
	if len(series) < 2 {
		return Candidate{
			ModelType:    ModelInsufficient,
			FittedSeries: append([]float64(nil), series...),
			Series:       series,
			Labels:       labels,
		}
	}

	type fitter struct {
		model ModelType
		fit   func([]float64) []float64
		min   int
	}
	fitters := []fitter{
		{ModelLinear, fitLinear, 2},
		{ModelPolynomial2, fitQuadratic, 2}, // falls back to linear below 3 points
		{ModelMovingAvg3, movingAverage(3), 3},
		{ModelMovingAvg6, movingAverage(6), 6},
		{ModelExpSmoothing, expSmooth(config.TrendSmoothingAlpha), 2},
	}

	var best Candidate
	found := false
	for _, f := range fitters {
		if len(series) < f.min {
			continue
		}
		c := score(f.model, series, f.fit(series))
		if !found || c.Score > best.Score {
			best = c
			found = true
		}
	}

	best.Series = series
	best.Labels = labels
	return best
}

// score computes the comparison metrics for one fitted series. The score
// weights apparent growth 10x over goodness-of-fit, which intentionally
// favors the most flattering plausible trend.
func score(model ModelType, raw, fitted []float64) Candidate {
	n := len(fitted)

	growth := 0.0
	if fitted[0] != 0 {
		growth = (fitted[n-1] - fitted[0]) / math.Abs(fitted[0])
	}

	mean := 0.0
	for _, v := range raw {
		mean += v
	}
	mean /= float64(len(raw))

	ssRes, ssTot := 0.0, 0.0
	for i, v := range raw {
		ssRes += (v - fitted[i]) * (v - fitted[i])
		ssTot += (v - mean) * (v - mean)
	}
	r2 := 0.0
	if ssTot != 0 {
		r2 = 1 - ssRes/ssTot
	}

	slope := 0.0
	if n >= 2 {
		slope = fitted[n-1] - fitted[n-2]
	}

	return Candidate{
		ModelType:    model,
		FittedSeries: fitted,
		SlopeAtEnd:   slope,
		GrowthRate:   growth,
		RSquared:     r2,
		Score:        growth*100 + r2*10,
	}
}

// linearCoefficients computes the OLS line y = m*x + b over x = 0..n-1.
func linearCoefficients(y []float64) (m, b float64) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	m = (n*sumXY - sumX*sumY) / denom
	b = (sumY - m*sumX) / n
	return m, b
}

func fitLinear(y []float64) []float64 {
	m, b := linearCoefficients(y)
	fitted := make([]float64, len(y))
	for i := range y {
		fitted[i] = m*float64(i) + b
	}
	return fitted
}

// fitQuadratic solves the degree-2 least-squares normal equations with
// Cramer's rule. Below 3 points, or when the system is singular, the linear
// coefficients are reused with the quadratic term zeroed.
func fitQuadratic(y []float64) []float64 {
	if len(y) < 3 {
		return fitLinear(y)
	}

	var s0, s1, s2, s3, s4, sy, sxy, sx2y float64
	for i, v := range y {
		x := float64(i)
		x2 := x * x
		s0++
		s1 += x
		s2 += x2
		s3 += x2 * x
		s4 += x2 * x2
		sy += v
		sxy += x * v
		sx2y += x2 * v
	}

	// | s4 s3 s2 | |a|   |sx2y|
	// | s3 s2 s1 | |b| = |sxy |
	// | s2 s1 s0 | |c|   |sy  |
	det := s4*(s2*s0-s1*s1) - s3*(s3*s0-s1*s2) + s2*(s3*s1-s2*s2)
	if det == 0 {
		return fitLinear(y)
	}
	a := (sx2y*(s2*s0-s1*s1) - s3*(sxy*s0-sy*s1) + s2*(sxy*s1-sy*s2)) / det
	b := (s4*(sxy*s0-sy*s1) - sx2y*(s3*s0-s1*s2) + s2*(s3*sy-s2*sxy)) / det
	c := (s4*(s2*sy-sxy*s1) - s3*(s3*sy-s2*sxy) + sx2y*(s3*s1-s2*s2)) / det

	fitted := make([]float64, len(y))
	for i := range y {
		x := float64(i)
		fitted[i] = a*x*x + b*x + c
	}
	return fitted
}

// movingAverage builds a trailing-window averager: index i averages
// [max(0, i-window+1) .. i], so early indices use a shorter warm-up window.
func movingAverage(window int) func([]float64) []float64 {
	return func(y []float64) []float64 {
		fitted := make([]float64, len(y))
		for i := range y {
			start := i - window + 1
			if start < 0 {
				start = 0
			}
			sum := 0.0
			for j := start; j <= i; j++ {
				sum += y[j]
			}
			fitted[i] = sum / float64(i-start+1)
		}
		return fitted
	}
}

func expSmooth(alpha float64) func([]float64) []float64 {
	return func(y []float64) []float64 {
		fitted := make([]float64, len(y))
		fitted[0] = y[0]
		for i := 1; i < len(y); i++ {
			fitted[i] = alpha*y[i] + (1-alpha)*fitted[i-1]
		}
		return fitted
	}
}
