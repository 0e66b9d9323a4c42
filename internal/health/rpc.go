package health

import (
	"context"
	"fmt"
	"sort"
)

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MultiChecker combines several named pings into one check.
type MultiChecker struct {
	pingers map[string]Pinger
}

// NewMultiChecker creates a checker over the given named pingers. Nil
// entries are ignored.
func NewMultiChecker(pingers map[string]Pinger) *MultiChecker {
	clean := make(map[string]Pinger, len(pingers))
	for name, p := range pingers {
		if p != nil {
			clean[name] = p
		}
	}
	return &MultiChecker{pingers: clean}
}

// Ping checks every pinger and returns the last failure.
func (c *MultiChecker) Ping(ctx context.Context) error {
	names := make([]string, 0, len(c.pingers))
	for name := range c.pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	var lastErr error
	for _, name := range names {
		if err := c.pingers[name].Ping(ctx); err != nil {
			lastErr = fmt.Errorf("%s: %w", name, err)
		}
	}
	return lastErr
}
