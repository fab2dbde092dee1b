package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceSpec describes one simulated device.
type DeviceSpec struct {
	Name string `yaml:"name"`
	// Group is the process data group, 0 by default.
	Group uint8 `yaml:"group"`
	// OutputBits and InputBits are the process data sizes of the device.
	OutputBits int `yaml:"output_bits"`
	InputBits  int `yaml:"input_bits"`
	// HasDC indicates distributed clock support.
	HasDC bool `yaml:"has_dc"`
	// PropagationDelay is reported in nanoseconds after distributed clock configuration.
	PropagationDelay int32 `yaml:"propagation_delay"`
	// TransitionPolls is the number of state polls a requested transition takes to settle.
	TransitionPolls int `yaml:"transition_polls"`
	// Objects pre-populates the object dictionary, keyed by "index:subindex" in hex, e.g. "1018:01".
	Objects map[string][]byte `yaml:"objects"`
}

// Topology describes the simulated device chain.
type Topology struct {
	Devices []DeviceSpec `yaml:"devices"`
}

// ParseTopology decodes a YAML topology document.
func ParseTopology(data []byte) (*Topology, error) {
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("sim: parse topology: %w", err)
	}

	for i, dev := range topo.Devices {
		if dev.OutputBits < 0 || dev.InputBits < 0 {
			return nil, fmt.Errorf("sim: device %d: negative process data size", i+1)
		}
		if dev.TransitionPolls < 0 {
			return nil, fmt.Errorf("sim: device %d: negative transition_polls", i+1)
		}
		for key := range dev.Objects {
			if _, err := parseObjectKey(key); err != nil {
				return nil, fmt.Errorf("sim: device %d: %w", i+1, err)
			}
		}
	}

	return &topo, nil
}

// LoadTopology reads and decodes a YAML topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sim: load topology (%s): %w", path, err)
	}

	return ParseTopology(data)
}

type objectKey struct {
	device   uint16
	index    uint16
	subindex uint8
}

func parseObjectKey(key string) (objectKey, error) {
	var k objectKey
	if _, err := fmt.Sscanf(key, "%04x:%02x", &k.index, &k.subindex); err != nil {
		return k, fmt.Errorf("invalid object key %q, want index:subindex in hex", key)
	}

	return k, nil
}
