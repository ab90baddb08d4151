package share

import "time"

// Sample is one share observation from the subnet proxy. Samples are values
// and are never mutated after the collector builds them.
type Sample struct {
	Identity   Identity
	Worker     string
	Difficulty float64
	Accepted   bool
	Timestamp  time.Time
	// Epoch is the epoch index current when the sample was collected.
	Epoch uint64
	// Polled is the end of the poll window that returned the sample.
	Polled time.Time
}
