// Package forecast maintains live remaining-time estimates for pipeline
// stages from noisy progress samples.
//
// Stage workers push Samples as they progress; the forecaster smooths
// instantaneous rates with an exponentially weighted moving average and
// derives a per-stage remaining-time estimate with a confidence score.
// Per-stage estimates aggregate into an overall ETA for the run.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultAlpha is the EWMA smoothing factor: each new instantaneous rate
// contributes 30%, the prior estimate 70%.
const DefaultAlpha = 0.3

// rateHistorySize bounds the recent-rate window used for the
// coefficient-of-variation confidence bonus.
const rateHistorySize = 10

// Confidence ladder constants.
const (
	confidenceFloor      = 0.1
	confidenceRate       = 0.5
	confidenceSettled    = 0.7
	confidenceCap        = 0.95
	cvBonus              = 0.2
	cvBonusThreshold     = 0.35
	nearDoneBonus        = 0.1
	settledSampleCount   = 5
	minPercentForRatio   = 5.0
	nearDonePercentFloor = 90.0
)

// Sample is one progress observation for a stage.
type Sample struct {
	// StageID correlates samples within a run (typically the run ID plus
	// stage number).
	StageID string

	// StageNumber is the pipeline stage (0-5).
	StageNumber int

	// StageName is the human label for display.
	StageName string

	// ObservedAt is when the observation was taken. Zero means now.
	ObservedAt time.Time

	// StartedAt is when the stage began. Only the first sample's value is
	// used; zero falls back to the first observation time.
	StartedAt time.Time

	// ProgressPercent is completion in [0, 100]. Values <= 0 mean unknown.
	ProgressPercent float64

	// ProcessedUnits and TotalUnits are unit counts when the stage knows
	// its workload size. Zero totals mean unknown.
	ProcessedUnits int64
	TotalUnits     int64

	// Completed marks the stage finished; Skipped marks it never run.
	// Either finalizes the stage estimate.
	Completed bool
	Skipped   bool
}

// Estimate is the forecaster's answer for one stage.
type Estimate struct {
	// StageNumber is the stage this estimate covers.
	StageNumber int `json:"stage_number"`

	// StageName is the stage's human label.
	StageName string `json:"stage_name"`

	// Remaining is the estimated time left. Meaningful only when Known.
	Remaining time.Duration `json:"remaining"`

	// Known reports whether any estimate could be produced.
	Known bool `json:"known"`

	// Confidence is in [0.1, 0.95].
	Confidence float64 `json:"confidence"`

	// Display is a short human hint, e.g. "~2m30s remaining".
	Display string `json:"display"`
}

// Overall aggregates stage estimates into a run-level ETA.
type Overall struct {
	// Remaining is the summed remaining time of all outstanding stages.
	// Stages with no estimate contribute zero but still appear in Stages.
	Remaining time.Duration `json:"remaining"`

	// Confidence is the mean confidence across outstanding stages, or 1.0
	// when nothing is outstanding.
	Confidence float64 `json:"confidence"`

	// Stages lists the latest estimate per known stage, ordered by number.
	Stages []Estimate `json:"stages"`
}

// stageState is the per-stage accumulator.
type stageState struct {
	number int
	name   string

	startedAt    time.Time
	lastObserved time.Time
	lastPercent  float64
	lastUnits    int64
	lastTotal    int64

	unitRate    float64 // smoothed units per second
	ratioSmooth float64 // smoothed progress ratio

	rates       []float64 // bounded recent instantaneous rates
	sampleCount int

	done      bool
	lastKnown Estimate
}

// Forecaster converts progress samples into remaining-time estimates.
//
// Forecaster is safe for concurrent use; workers for independent stages
// push samples from their own goroutines.
type Forecaster struct {
	mu     sync.Mutex
	alpha  float64
	now    func() time.Time
	seeds  map[int]time.Duration
	stages map[int]*stageState
}

// New creates a Forecaster with the default smoothing factor.
func New() *Forecaster {
	return NewWithAlpha(DefaultAlpha)
}

// NewWithAlpha creates a Forecaster with a custom EWMA smoothing factor in
// (0, 1]. Out-of-range values fall back to the default.
func NewWithAlpha(alpha float64) *Forecaster {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Forecaster{
		alpha:  alpha,
		now:    time.Now,
		seeds:  make(map[int]time.Duration),
		stages: make(map[int]*stageState),
	}
}

// Seed initializes the fallback duration prediction for a stage from
// historical run data. Seeds only matter before live rate samples exist.
func (f *Forecaster) Seed(stageNumber int, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if duration > 0 {
		f.seeds[stageNumber] = duration
	}
}

// SeedAll installs historical durations for several stages at once.
func (f *Forecaster) SeedAll(durations map[int]time.Duration) {
	for n, d := range durations {
		f.Seed(n, d)
	}
}

// UpdateProgress folds one sample into the stage's accumulator and returns
// the refreshed estimate.
func (f *Forecaster) UpdateProgress(s Sample) Estimate {
	f.mu.Lock()
	defer f.mu.Unlock()

	observed := s.ObservedAt
	if observed.IsZero() {
		observed = f.now()
	}

	st, ok := f.stages[s.StageNumber]
	if !ok {
		startedAt := s.StartedAt
		if startedAt.IsZero() {
			startedAt = observed
		}
		st = &stageState{
			number:    s.StageNumber,
			name:      s.StageName,
			startedAt: startedAt,
		}
		f.stages[s.StageNumber] = st
	}
	if st.name == "" {
		st.name = s.StageName
	}

	if s.Skipped {
		return f.finalizeLocked(st, "skipped")
	}
	if s.Completed {
		return f.finalizeLocked(st, "completed")
	}
	if st.done {
		// Late sample after finalization keeps the terminal estimate.
		return st.lastKnown
	}

	elapsed := observed.Sub(st.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	est := Estimate{StageNumber: st.number, StageName: st.name}

	switch {
	case s.TotalUnits > 0 && s.ProcessedUnits > 0 && s.ProcessedUnits < s.TotalUnits:
		f.updateUnitRateLocked(st, s, observed, elapsed)
		if st.unitRate > 0 {
			remaining := float64(s.TotalUnits-s.ProcessedUnits) / st.unitRate
			est.Remaining = time.Duration(remaining * float64(time.Second))
			est.Known = true
		}

	case s.ProgressPercent > minPercentForRatio && s.ProgressPercent < 100:
		ratio := s.ProgressPercent / 100
		if st.ratioSmooth <= 0 {
			st.ratioSmooth = ratio
		} else {
			st.ratioSmooth = f.alpha*ratio + (1-f.alpha)*st.ratioSmooth
		}
		if elapsed > 0 {
			f.recordRateLocked(st, ratio/elapsed.Seconds())
		}
		if st.ratioSmooth > 0 && elapsed > 0 {
			remaining := time.Duration(float64(elapsed)/st.ratioSmooth) - elapsed
			if remaining < 0 {
				remaining = 0
			}
			est.Remaining = remaining
			est.Known = true
		}

	default:
		if seed, ok := f.seeds[st.number]; ok {
			remaining := seed - elapsed
			if remaining < 0 {
				remaining = 0
			}
			est.Remaining = remaining
			est.Known = true
		}
	}

	st.lastObserved = observed
	st.lastPercent = s.ProgressPercent
	st.lastUnits = s.ProcessedUnits
	st.lastTotal = s.TotalUnits

	est.Confidence = f.confidenceLocked(st, s.ProgressPercent)
	if est.Known {
		est.Display = fmt.Sprintf("~%s remaining", est.Remaining.Round(time.Second))
	} else {
		est.Display = "unknown"
	}

	st.lastKnown = est
	return est
}

// Overall aggregates the latest per-stage estimates into a run ETA.
func (f *Forecaster) Overall() Overall {
	f.mu.Lock()
	defer f.mu.Unlock()

	numbers := make([]int, 0, len(f.stages))
	for n := range f.stages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	out := Overall{}
	var outstanding int
	var confSum float64

	for _, n := range numbers {
		st := f.stages[n]
		out.Stages = append(out.Stages, st.lastKnown)
		if st.done {
			continue
		}
		outstanding++
		confSum += st.lastKnown.Confidence
		if st.lastKnown.Known {
			out.Remaining += st.lastKnown.Remaining
		}
	}

	if outstanding == 0 {
		out.Confidence = 1.0
		return out
	}
	out.Confidence = confSum / float64(outstanding)
	return out
}

// finalizeLocked freezes a stage estimate at zero remaining with maximum
// confidence. Caller must hold mu.
func (f *Forecaster) finalizeLocked(st *stageState, label string) Estimate {
	st.done = true
	st.lastKnown = Estimate{
		StageNumber: st.number,
		StageName:   st.name,
		Remaining:   0,
		Known:       true,
		Confidence:  confidenceCap,
		Display:     label,
	}
	return st.lastKnown
}

// updateUnitRateLocked folds a unit-count observation into the unit-rate
// EWMA. The instantaneous rate is the delta against the previous
// observation when one exists, otherwise the lifetime average.
func (f *Forecaster) updateUnitRateLocked(st *stageState, s Sample, observed time.Time, elapsed time.Duration) {
	var instant float64
	if !st.lastObserved.IsZero() && s.ProcessedUnits > st.lastUnits {
		dt := observed.Sub(st.lastObserved).Seconds()
		if dt > 0 {
			instant = float64(s.ProcessedUnits-st.lastUnits) / dt
		}
	}
	if instant <= 0 && elapsed > 0 {
		instant = float64(s.ProcessedUnits) / elapsed.Seconds()
	}
	if instant <= 0 {
		return
	}

	if st.unitRate <= 0 {
		st.unitRate = instant
	} else {
		st.unitRate = f.alpha*instant + (1-f.alpha)*st.unitRate
	}
	f.recordRateLocked(st, instant)
}

// recordRateLocked appends an instantaneous rate to the bounded history.
func (f *Forecaster) recordRateLocked(st *stageState, rate float64) {
	st.sampleCount++
	st.rates = append(st.rates, rate)
	if len(st.rates) > rateHistorySize {
		st.rates = st.rates[len(st.rates)-rateHistorySize:]
	}
}

// confidenceLocked walks the confidence ladder for a stage.
func (f *Forecaster) confidenceLocked(st *stageState, percent float64) float64 {
	conf := confidenceFloor
	if st.unitRate > 0 || st.ratioSmooth > 0 {
		conf = confidenceRate
	}
	if st.sampleCount >= settledSampleCount {
		conf = confidenceSettled
		if cv, ok := coefficientOfVariation(st.rates); ok && cv < cvBonusThreshold {
			conf += cvBonus
		}
	}
	if percent >= nearDonePercentFloor {
		conf += nearDoneBonus
	}
	if conf > confidenceCap {
		conf = confidenceCap
	}
	return conf
}

// coefficientOfVariation returns stddev/mean over the sample window. The
// second return is false when the window is too small or the mean is zero.
func coefficientOfVariation(rates []float64) (float64, bool) {
	if len(rates) < 2 {
		return 0, false
	}
	var sum float64
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(len(rates))
	if mean == 0 {
		return 0, false
	}
	var ss float64
	for _, r := range rates {
		d := r - mean
		ss += d * d
	}
	stddev := math.Sqrt(ss / float64(len(rates)))
	return stddev / mean, true
}
