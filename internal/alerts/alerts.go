// Package alerts evaluates price alerts against the live price stream.
package alerts

import (
	"log/slog"
	"sync"

	"chartengine/internal/model"
)

// Checker owns the session's price alerts and their one-way trigger
// transitions. An alert flips from untriggered to triggered the first time
// the price crosses its threshold in the alert's direction, and never
// reverts.
type Checker struct {
	log *slog.Logger

	mu     sync.Mutex
	alerts map[string]*model.PriceAlert

	// OnTriggered is invoked (outside the lock) once per alert, at the
	// moment it trips.
	OnTriggered func(a model.PriceAlert)
}

// NewChecker creates an empty alert checker.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		log:    log,
		alerts: make(map[string]*model.PriceAlert),
	}
}

// Add registers an alert. An already-triggered alert is stored as-is.
func (c *Checker) Add(a model.PriceAlert) {
	c.mu.Lock()
	cp := a
	c.alerts[a.ID] = &cp
	c.mu.Unlock()
}

// Remove deletes an alert by ID.
func (c *Checker) Remove(id string) {
	c.mu.Lock()
	delete(c.alerts, id)
	c.mu.Unlock()
}

// ClearSymbol removes all alerts for one symbol.
func (c *Checker) ClearSymbol(symbol string) {
	c.mu.Lock()
	for id, a := range c.alerts {
		if a.Symbol == symbol {
			delete(c.alerts, id)
		}
	}
	c.mu.Unlock()
}

// Check evaluates all untriggered alerts for the symbol against price.
// Returns the alerts that tripped on this check.
func (c *Checker) Check(symbol string, price float64) []model.PriceAlert {
	var tripped []model.PriceAlert

	c.mu.Lock()
	for _, a := range c.alerts {
		if a.Symbol != symbol || a.Triggered {
			continue
		}
		crossed := (a.Direction == model.AlertAbove && price >= a.Price) ||
			(a.Direction == model.AlertBelow && price <= a.Price)
		if crossed {
			a.Triggered = true
			tripped = append(tripped, *a)
		}
	}
	c.mu.Unlock()

	for _, a := range tripped {
		c.log.Info("price alert triggered",
			"id", a.ID, "symbol", a.Symbol, "price", a.Price, "direction", string(a.Direction))
		if c.OnTriggered != nil {
			c.OnTriggered(a)
		}
	}
	return tripped
}

// Snapshot returns a copy of the alerts for one symbol.
func (c *Checker) Snapshot(symbol string) []model.PriceAlert {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.PriceAlert
	for _, a := range c.alerts {
		if a.Symbol == symbol {
			out = append(out, *a)
		}
	}
	return out
}
