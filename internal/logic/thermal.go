package logic

import "time"

// ThermalContext is the controller's view of the room.
type ThermalContext struct {
	RoomTemperature float64
	HasTemperature  bool
	LastUpdate      time.Time
	CallForHeat     bool
	HasCall         bool
	Daytime         bool
	Cold            float64
	Warm            float64
}

// IsDaytime reports whether hour falls in [DayStartHour, NightStartHour).
// A day window that wraps midnight is supported.
func IsDaytime(t ThermalTunables, hour int) bool {
	start, end := t.DayStartHour, t.NightStartHour
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// applySchedule refreshes the day/night flag and thresholds for now.
func (c *ThermalContext) applySchedule(t ThermalTunables, now time.Time) {
	c.Daytime = IsDaytime(t, now.Hour())
	if c.Daytime {
		c.Cold = t.DayCold
	} else {
		c.Cold = t.NightCold
	}
	c.Warm = c.Cold + t.Hysteresis
}

func (c *ThermalContext) updateTemperature(r Reading) {
	c.RoomTemperature = r.Celsius
	c.LastUpdate = r.UpdatedAt
	c.HasTemperature = true
}

func (c *ThermalContext) updateCall(on bool) {
	c.CallForHeat = on
	c.HasCall = true
}

// classify reports whether the room is warm or cold under mode. known is
// false when the relevant input has never been seen.
func (c ThermalContext) classify(mode FeedMode) (warm, cold, known bool) {
	if mode == FeedTwoLevel {
		if !c.HasCall {
			return false, false, false
		}
		return !c.CallForHeat, c.CallForHeat, true
	}
	if !c.HasTemperature {
		return false, false, false
	}
	return c.RoomTemperature >= c.Warm, c.RoomTemperature <= c.Cold, true
}

// stale reports whether the temperature is older than maxAge at now.
// A temperature that never arrived is stale.
func (c ThermalContext) stale(now time.Time, maxAge time.Duration) bool {
	if !c.HasTemperature {
		return true
	}
	return now.Sub(c.LastUpdate) > maxAge
}
