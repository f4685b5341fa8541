package logic

import (
	"math"
	"time"
)

// FeedController computes the auger duty cycle from a smoothed demand ratio.
//
// Proportional and two-level modes share one law: a target in [0,1] is blended
// into the retained ratio by an asymmetric EMA, and the ratio interpolates
// between the low and high duty pairs. Two-level mode uses targets of exactly
// 0 or 1 with both blend rates forced to 1.
type FeedController struct {
	params FeedTunables
	ratio  float64
}

// NewFeedController creates a controller at minimum demand.
func NewFeedController(p FeedTunables) *FeedController {
	return &FeedController{params: p}
}

// Configure replaces the tunables. The retained ratio is kept.
func (f *FeedController) Configure(p FeedTunables) {
	f.params = p
}

// Reset drops the ratio to minimum demand.
func (f *FeedController) Reset() {
	f.ratio = 0
}

// Ratio returns the smoothed demand.
func (f *FeedController) Ratio() float64 {
	return f.ratio
}

// Target returns the raw demand for ctx, and false when the input is unknown.
func (f *FeedController) Target(ctx ThermalContext) (float64, bool) {
	if f.params.Mode == FeedTwoLevel {
		if !ctx.HasCall {
			return 0, false
		}
		if ctx.CallForHeat {
			return 1, true
		}
		return 0, true
	}
	if !ctx.HasTemperature {
		return 0, false
	}
	target := ProportionalTarget(ctx.RoomTemperature, ctx.Cold, ctx.Warm)
	if math.IsNaN(target) {
		return 0, false
	}
	return target, true
}

// Step blends target into the retained ratio and returns the new ratio.
// A NaN target leaves the ratio unchanged.
func (f *FeedController) Step(target float64) float64 {
	if math.IsNaN(target) {
		return f.ratio
	}
	target = clamp01(target)
	a := f.alpha(target)
	f.ratio = clamp01(f.ratio*(1-a) + target*a)
	return f.ratio
}

func (f *FeedController) alpha(target float64) float64 {
	if f.params.Mode == FeedTwoLevel {
		return 1
	}
	if target > f.ratio {
		return f.params.AlphaUp
	}
	return f.params.AlphaDown
}

// Duty returns the on/off pair for the current ratio.
func (f *FeedController) Duty() (on, off time.Duration) {
	return Interpolate(f.params, f.ratio)
}

// State returns the visible feed state.
func (f *FeedController) State() FeedState {
	on, off := f.Duty()
	return FeedState{Ratio: f.ratio, OnTime: on, OffTime: off}
}

// ProportionalTarget maps room temperature onto demand: 1 at or below cold,
// 0 at or above warm, linear between. It returns NaN when any input is NaN.
func ProportionalTarget(temp, cold, warm float64) float64 {
	if math.IsNaN(temp) || math.IsNaN(cold) || math.IsNaN(warm) {
		return math.NaN()
	}
	span := warm - cold
	if span <= 0 {
		if temp <= cold {
			return 1
		}
		return 0
	}
	return clamp01((warm - temp) / span)
}

// Interpolate derives the duty pair from ratio r. Off-time shrinks as demand
// rises, so feed pulses become more frequent.
func Interpolate(p FeedTunables, r float64) (on, off time.Duration) {
	r = clamp01(r)
	on = p.LowOn + time.Duration(r*float64(p.HighOn-p.LowOn))
	off = p.LowOff - time.Duration(r*float64(p.LowOff-p.HighOff))
	return on, off
}

// clamp01 maps NaN to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
