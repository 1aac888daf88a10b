package dataflow

import "fmt"

// Config sizes the rename state and its per-cycle ports.
type Config struct {
	// NumAregs is the number of architectural registers. Register 0 is
	// hardwired to zero.
	NumAregs int `json:"num_aregs" yaml:"num_aregs"`

	// NumPregs is the number of physical tags including the reserved zero
	// tag, which is NumPregs-1.
	NumPregs int `json:"num_pregs" yaml:"num_pregs"`

	// MaxSpecDepth is the number of checkpoints that may be live at once.
	MaxSpecDepth int `json:"max_spec_depth" yaml:"max_spec_depth"`

	// NumStoreIDs is the size of the store-buffer id pool.
	NumStoreIDs int `json:"num_store_ids" yaml:"num_store_ids"`

	// NumDstPorts bounds destination allocations, store-id allocations and
	// commits per cycle.
	NumDstPorts int `json:"num_dst_ports" yaml:"num_dst_ports"`

	// NumForwardPorts bounds Forward calls per cycle.
	NumForwardPorts int `json:"num_forward_ports" yaml:"num_forward_ports"`
}

// DefaultConfig returns a 32-register RV64 configuration with 64 tags and a
// speculation depth of 4.
func DefaultConfig() Config {
	return Config{
		NumAregs:        32,
		NumPregs:        64,
		MaxSpecDepth:    4,
		NumStoreIDs:     8,
		NumDstPorts:     2,
		NumForwardPorts: 2,
	}
}

// ZeroTag returns the reserved tag that always reads as zero.
func (c Config) ZeroTag() int {
	return c.NumPregs - 1
}

// Validate checks that the configuration describes a usable core.
func (c Config) Validate() error {
	if c.NumAregs < 2 {
		return fmt.Errorf("num_aregs must be >= 2")
	}
	if c.NumPregs <= c.NumAregs {
		return fmt.Errorf("num_pregs must be > num_aregs")
	}
	if c.MaxSpecDepth < 1 || c.MaxSpecDepth > 64 {
		return fmt.Errorf("max_spec_depth must be in [1, 64]")
	}
	if c.NumStoreIDs < 1 {
		return fmt.Errorf("num_store_ids must be > 0")
	}
	if c.NumDstPorts < 1 {
		return fmt.Errorf("num_dst_ports must be > 0")
	}
	if c.NumForwardPorts < 1 {
		return fmt.Errorf("num_forward_ports must be > 0")
	}
	return nil
}
