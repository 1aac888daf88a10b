package issue

import "fmt"

// Config sizes an issue queue.
type Config struct {
	NumSlots int `json:"num_slots" yaml:"num_slots"`

	// NumNotify bounds the Notify calls per cycle.
	NumNotify int `json:"num_notify" yaml:"num_notify"`

	// BypassReady lets a notify wake a waiting entry for selection in the
	// same cycle instead of the next one.
	BypassReady bool `json:"bypass_ready" yaml:"bypass_ready"`
}

// DefaultConfig returns a 16-slot queue with two wakeup ports.
func DefaultConfig() Config {
	return Config{
		NumSlots:  16,
		NumNotify: 2,
	}
}

// Validate checks that the configuration describes a usable queue.
func (c Config) Validate() error {
	if c.NumSlots < 1 {
		return fmt.Errorf("num_slots must be > 0")
	}
	if c.NumNotify < 1 {
		return fmt.Errorf("num_notify must be > 0")
	}
	return nil
}
