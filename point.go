package modsim

import (
	"errors"
	"fmt"
)

const (
	KindCoil     = "coil"
	KindDiscrete = "discrete"
	KindInput    = "input"
	KindHolding  = "holding"
)

var ErrUnknownKind = errors.New("unknown register kind")

// Point addresses a single value of a device.
type Point struct {
	Kind    string // coil | discrete | input | holding
	Address uint16
}

func (p Point) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.Address)
}

// Read returns the value at p. Bits read as 0 or 1.
func (d *Device) Read(p Point) (uint16, error) {
	switch p.Kind {
	case KindCoil:
		return bit(d.GetCoil(p.Address).Value), nil
	case KindDiscrete:
		return bit(d.GetInput(p.Address).Value), nil
	case KindInput:
		return d.GetInputRegister(p.Address).Value, nil
	case KindHolding:
		return d.GetHoldingRegister(p.Address).Value, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, p.Kind)
	}
}

// Write stores v at p. Any non-zero v sets a bit.
func (d *Device) Write(p Point, v uint16) error {
	switch p.Kind {
	case KindCoil:
		d.SetCoil(p.Address, v != 0)
	case KindDiscrete:
		d.SetInput(p.Address, v != 0)
	case KindInput:
		d.SetInputRegister(p.Address, v)
	case KindHolding:
		d.SetHoldingRegister(p.Address, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, p.Kind)
	}
	return nil
}

func bit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
