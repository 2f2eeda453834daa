// README: Wage table definition: distance bands plus a fallback formula.
package wage

import "errors"

var (
	ErrInvalidDistance = errors.New("distance must be a finite, non-negative number")
	ErrNoRule          = errors.New("no wage rule covers distance")
	ErrNoRules         = errors.New("no finance rules configured")
)

// DefaultFormula prices distances no band covers; `distance` is in km.
const DefaultFormula = "70 + (distance - 5) * 10"

// Band pays Wage for distances in (Min, Max]. A band starting at 0 also
// covers a zero distance.
type Band struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Wage float64 `json:"wage"`
}

func (b Band) Covers(distance float64) bool {
	if b.Min == 0 && distance == 0 {
		return true
	}
	return distance > b.Min && distance <= b.Max
}

type Table struct {
	Bands   []Band `json:"bands"`
	Formula string `json:"formula"`
}

// DefaultTable is used until finance publishes a table. Nothing covers
// 3–4 km, so those distances fall through to the formula.
func DefaultTable(formula string) Table {
	if formula == "" {
		formula = DefaultFormula
	}
	return Table{
		Bands: []Band{
			{Min: 0, Max: 1, Wage: 30},
			{Min: 1, Max: 2, Wage: 40},
			{Min: 2, Max: 3, Wage: 50},
			{Min: 4, Max: 5, Wage: 70},
		},
		Formula: formula,
	}
}
