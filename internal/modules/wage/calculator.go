// README: Wage calculator: band lookup with expr-evaluated formula fallback.
package wage

import (
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Calculator caches compiled formulas; safe for concurrent use.
type Calculator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewCalculator() *Calculator {
	return &Calculator{programs: make(map[string]*vm.Program)}
}

func ValidDistance(distance float64) bool {
	return !math.IsNaN(distance) && !math.IsInf(distance, 0) && distance >= 0
}

// Calculate returns the driver wage for distance under table. The first band
// covering distance wins; otherwise the table formula is evaluated.
func (c *Calculator) Calculate(table Table, distance float64) (float64, error) {
	if !ValidDistance(distance) {
		return 0, ErrInvalidDistance
	}
	for _, b := range table.Bands {
		if b.Covers(distance) {
			return b.Wage, nil
		}
	}
	if table.Formula == "" {
		return 0, fmt.Errorf("%w: %.2f km", ErrNoRule, distance)
	}
	return c.evaluate(table.Formula, distance)
}

func (c *Calculator) evaluate(formula string, distance float64) (float64, error) {
	program, err := c.compile(formula)
	if err != nil {
		return 0, err
	}
	out, err := expr.Run(program, map[string]any{"distance": distance})
	if err != nil {
		return 0, fmt.Errorf("evaluate wage formula: %w", err)
	}
	v, ok := out.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("wage formula %q produced %v", formula, out)
	}
	return math.Max(v, 0), nil
}

func (c *Calculator) compile(formula string) (*vm.Program, error) {
	c.mu.RLock()
	p, ok := c.programs[formula]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := expr.Compile(formula, expr.Env(map[string]any{"distance": 0.0}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile wage formula: %w", err)
	}
	c.mu.Lock()
	c.programs[formula] = p
	c.mu.Unlock()
	return p, nil
}
