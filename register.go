package modsim

// RegisterType tells input registers and holding registers apart.
type RegisterType uint8

const (
	InputRegister RegisterType = iota + 1
	HoldingRegister
)

func (t RegisterType) String() string {
	switch t {
	case InputRegister:
		return "input"
	case HoldingRegister:
		return "holding"
	default:
		return "unknown"
	}
}

// Coil is a single read/write bit of a device.
type Coil struct {
	Address uint16
	Value   bool
}

// DiscreteInput is a single bit that clients may read but not write.
type DiscreteInput struct {
	Address uint16
	Value   bool
}

// Register is a 16 bit word of either the input or the holding register bank.
type Register struct {
	Address uint16       // the address of this register
	Value   uint16       // 0 if the address was never written
	Type    RegisterType // input | holding
}
