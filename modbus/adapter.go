package modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/rwirdemann/modsim"
	"github.com/simonvetter/modbus"
)

// ErrReadOnly is returned for writes to discrete inputs and input registers, which the
// protocol offers no function code for.
var ErrReadOnly = errors.New("register kind is read-only")

// Adapter talks to a running simulator (or any other modbus slave) as a client.
type Adapter struct {
	client *modbus.ModbusClient
}

// Value is a point read from or written to a remote slave.
type Value struct {
	SlaveAddress uint8
	modsim.Point
	Value uint16 // 0 or 1 for bits
}

func NewAdapter(serial modsim.Serial) (Adapter, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     serial.Url,
		Timeout: time.Duration(serial.Timeout) * time.Millisecond,
	})
	if err != nil {
		return Adapter{}, fmt.Errorf("create client: %w", err)
	}
	if err = client.Open(); err != nil {
		return Adapter{}, fmt.Errorf("open %s: %w", serial.Url, err)
	}

	return Adapter{client: client}, nil
}

func (a Adapter) Close() {
	_ = a.client.Close()
}

func (a Adapter) Read(slaveAddress uint8, p modsim.Point) (Value, error) {
	if err := a.client.SetUnitId(slaveAddress); err != nil {
		return Value{}, fmt.Errorf("set unit id: %w", err)
	}

	v := Value{SlaveAddress: slaveAddress, Point: p}
	switch p.Kind {
	case modsim.KindCoil:
		b, err := a.client.ReadCoil(p.Address)
		if err != nil {
			return Value{}, fmt.Errorf("read %s: %w", p, err)
		}
		v.Value = bit(b)
	case modsim.KindDiscrete:
		b, err := a.client.ReadDiscreteInput(p.Address)
		if err != nil {
			return Value{}, fmt.Errorf("read %s: %w", p, err)
		}
		v.Value = bit(b)
	case modsim.KindInput:
		w, err := a.client.ReadRegister(p.Address, modbus.INPUT_REGISTER)
		if err != nil {
			return Value{}, fmt.Errorf("read %s: %w", p, err)
		}
		v.Value = w
	case modsim.KindHolding:
		w, err := a.client.ReadRegister(p.Address, modbus.HOLDING_REGISTER)
		if err != nil {
			return Value{}, fmt.Errorf("read %s: %w", p, err)
		}
		v.Value = w
	default:
		return Value{}, fmt.Errorf("%w: %s", modsim.ErrUnknownKind, p.Kind)
	}
	return v, nil
}

// ReadAll reads every point of the slave, skipping those that fail.
func (a Adapter) ReadAll(slaveAddress uint8, points []modsim.Point) []Value {
	var vv []Value
	for _, p := range points {
		v, err := a.Read(slaveAddress, p)
		if err != nil {
			continue
		}
		vv = append(vv, v)
	}
	return vv
}

func (a Adapter) Write(v Value) error {
	if err := a.client.SetUnitId(v.SlaveAddress); err != nil {
		return fmt.Errorf("set unit id: %w", err)
	}

	switch v.Kind {
	case modsim.KindCoil:
		if err := a.client.WriteCoil(v.Address, v.Value != 0); err != nil {
			return fmt.Errorf("write %s: %w", v.Point, err)
		}
	case modsim.KindHolding:
		if err := a.client.WriteRegister(v.Address, v.Value); err != nil {
			return fmt.Errorf("write %s: %w", v.Point, err)
		}
	case modsim.KindDiscrete, modsim.KindInput:
		return fmt.Errorf("%w: %s", ErrReadOnly, v.Kind)
	default:
		return fmt.Errorf("%w: %s", modsim.ErrUnknownKind, v.Kind)
	}
	return nil
}

func bit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
