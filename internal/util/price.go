// Package util provides common utility functions for price calculations.
package util

import "math"

// PennyTick is the minimum price increment of a combo limit.
const PennyTick = 0.01

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// LimitPrice converts a signed net package price into a positive limit on the tick grid,
// never below one tick.
func LimitPrice(net, tick float64) float64 {
	p := RoundToTick(math.Abs(net), tick)
	if tick > 0 && p < tick {
		return tick
	}
	return p
}
