package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/rvooo/timing/cache"
	"github.com/sarchlab/rvooo/timing/dataflow"
	"github.com/sarchlab/rvooo/timing/frontend"
	"github.com/sarchlab/rvooo/timing/issue"
	"github.com/sarchlab/rvooo/timing/latency"
)

// Config describes a complete core.
type Config struct {
	Dataflow   dataflow.Config          `json:"dataflow" yaml:"dataflow"`
	IssueQueue issue.Config             `json:"issue_queue" yaml:"issue_queue"`
	Latency    latency.TimingConfig     `json:"latency" yaml:"latency"`
	Predictor  frontend.PredictorConfig `json:"predictor" yaml:"predictor"`
	Fetch      frontend.FetcherConfig   `json:"fetch" yaml:"fetch"`

	// DCache configures the data cache. A zero size disables it.
	DCache cache.Config `json:"dcache" yaml:"dcache"`

	DispatchWidth  int `json:"dispatch_width" yaml:"dispatch_width"`
	CommitWidth    int `json:"commit_width" yaml:"commit_width"`
	WritebackWidth int `json:"writeback_width" yaml:"writeback_width"`
	ROBSize        int `json:"rob_size" yaml:"rob_size"`

	// FrequencyGHz is the clock of the akita component wrapping the core.
	FrequencyGHz float64 `json:"frequency_ghz" yaml:"frequency_ghz"`
}

// DefaultConfig returns a 2-wide core with a 32-entry ROB.
func DefaultConfig() Config {
	iq := issue.DefaultConfig()
	iq.BypassReady = true

	return Config{
		Dataflow:       dataflow.DefaultConfig(),
		IssueQueue:     iq,
		Latency:        *latency.DefaultTimingConfig(),
		Predictor:      frontend.DefaultPredictorConfig(),
		Fetch:          frontend.DefaultFetcherConfig(),
		DCache:         cache.DefaultL1DConfig(),
		DispatchWidth:  2,
		CommitWidth:    2,
		WritebackWidth: 2,
		ROBSize:        32,
		FrequencyGHz:   1,
	}
}

// Validate checks each part and the widths that tie them together.
func (c Config) Validate() error {
	if err := c.Dataflow.Validate(); err != nil {
		return fmt.Errorf("dataflow: %w", err)
	}
	if c.Dataflow.NumAregs != 32 {
		return fmt.Errorf("dataflow: num_aregs must be 32 for RV64")
	}
	if err := c.IssueQueue.Validate(); err != nil {
		return fmt.Errorf("issue_queue: %w", err)
	}
	if err := c.Latency.Validate(); err != nil {
		return fmt.Errorf("latency: %w", err)
	}
	if err := c.Predictor.Validate(); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := c.DCache.Validate(); err != nil {
		return fmt.Errorf("dcache: %w", err)
	}

	ports := c.Dataflow.NumDstPorts
	if c.DispatchWidth < 1 || c.DispatchWidth > ports {
		return fmt.Errorf("dispatch_width must be in [1, num_dst_ports]")
	}
	if c.CommitWidth < 1 || c.CommitWidth > ports {
		return fmt.Errorf("commit_width must be in [1, num_dst_ports]")
	}
	if c.WritebackWidth < 1 ||
		c.WritebackWidth > c.IssueQueue.NumNotify ||
		c.WritebackWidth > c.Dataflow.NumForwardPorts {
		return fmt.Errorf("writeback_width must be in [1, min(num_notify, num_forward_ports)]")
	}
	if c.ROBSize < 1 {
		return fmt.Errorf("rob_size must be > 0")
	}
	if c.FrequencyGHz <= 0 {
		return fmt.Errorf("frequency_ghz must be > 0")
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a Config from a JSON or YAML file, chosen by extension.
// Fields absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read core config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse core config: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the Config to a JSON or YAML file, chosen by extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize core config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write core config file: %w", err)
	}

	return nil
}
