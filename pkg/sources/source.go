// Package sources hosts the run-request producers. A source watches
// something external, the clock or a queue, and publishes RunRequested
// events; it never executes blocks itself.
package sources

import "context"

// Source is a long-lived run-request producer. Start returns once the source
// is wired up; production happens on background goroutines until Stop.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
