// Package impact matches subscriber trade profiles against policy changes
// and computes the exact dollar exposure per user.
package impact

import (
	"math"

	"github.com/sells-group/tariffwatch/internal/model"
)

// Calculator computes duty costs for a set of affected components. It is a
// pure function of its inputs: rates are percentages as plain floats
// (25.0 means 25%), values are USD.
type Calculator struct{}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Costs returns the total duty cost under the old and new rates for the
// affected components, accumulated per component and summed. Rounding
// happens only at the output boundary so per-component rounding error
// cannot compound.
func (c *Calculator) Costs(components []model.Component, tradeVolume, oldRate, newRate float64) (oldCost, newCost float64) {
	for _, comp := range components {
		componentValue := (comp.ValuePercentage / 100) * tradeVolume
		oldCost += componentValue * (oldRate / 100)
		newCost += componentValue * (newRate / 100)
	}
	return math.Round(oldCost), math.Round(newCost)
}

// DefaultVolume is the trade volume to assume when a profile records none:
// the sum of the matched components' raw values.
func (c *Calculator) DefaultVolume(components []model.Component) float64 {
	var sum float64
	for _, comp := range components {
		sum += comp.Value
	}
	return sum
}
