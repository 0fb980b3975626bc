package modsim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
)

type Config struct {
	Serials []Serial `json:"serial"`
}

// Serial describes one listening endpoint and the slaves behind it.
type Serial struct {
	Url        string  `json:"url"`
	Timeout    int     `json:"timeout"` // idle client timeout in milliseconds
	MaxClients uint    `json:"max_clients"`
	Slaves     []Slave `json:"slaves"`
}

// Slave describes one simulated device and the values it starts with.
type Slave struct {
	Address          uint8             `json:"address,omitempty"`
	Type             string            `json:"type"`
	Online           bool              `json:"online"`
	Coils            map[uint16]bool   `json:"coils,omitempty"`
	DiscreteInputs   map[uint16]bool   `json:"discrete_inputs,omitempty"`
	InputRegisters   map[uint16]uint16 `json:"input_registers,omitempty"`
	HoldingRegisters map[uint16]uint16 `json:"holding_registers,omitempty"`
}

func LoadConfig(configPath string) (Config, error) {
	if !exists(path.Join(configPath, "config.json")) {
		return Config{}, fmt.Errorf("configuration file not found: %s", path.Join(configPath, "config.json"))
	}

	bb, err := os.ReadFile(path.Join(configPath, "config.json"))
	if err != nil {
		return Config{}, fmt.Errorf("error reading file: %w", err)
	}
	var config Config
	if err := json.NewDecoder(bytes.NewReader(bb)).Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error decoding file: %w", err)
	}
	return config, nil
}

// NewDevice builds a device seeded with the slave's initial values.
func (s Slave) NewDevice() *Device {
	d := NewDevice(s.Address)
	for a, v := range s.Coils {
		d.SetCoil(a, v)
	}
	for a, v := range s.DiscreteInputs {
		d.SetInput(a, v)
	}
	for a, v := range s.InputRegisters {
		d.SetInputRegister(a, v)
	}
	for a, v := range s.HoldingRegisters {
		d.SetHoldingRegister(a, v)
	}
	return d
}

// Points lists every address named in the slave's configuration, ordered by kind
// and address.
func (s Slave) Points() []Point {
	var pp []Point
	pp = appendPoints(pp, KindCoil, keys(s.Coils))
	pp = appendPoints(pp, KindDiscrete, keys(s.DiscreteInputs))
	pp = appendPoints(pp, KindInput, keys(s.InputRegisters))
	pp = appendPoints(pp, KindHolding, keys(s.HoldingRegisters))
	return pp
}

func appendPoints(pp []Point, kind string, addresses []uint16) []Point {
	sort.Slice(addresses, func(i, j int) bool { return addresses[i] < addresses[j] })
	for _, a := range addresses {
		pp = append(pp, Point{Kind: kind, Address: a})
	}
	return pp
}

func keys[V any](m map[uint16]V) []uint16 {
	kk := make([]uint16, 0, len(m))
	for k := range m {
		kk = append(kk, k)
	}
	return kk
}

func exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil || !os.IsNotExist(err)
}
