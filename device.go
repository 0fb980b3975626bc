package modsim

import "sync"

// Device holds the four address spaces of a simulated Modbus slave. Each bank is
// guarded by its own lock, so writers to different banks never contend and no
// operation ever holds more than one lock.
//
// Banks are sparse: a bit bank stores only the addresses that are set and a word bank
// stores only non-zero words. Reading an address that was never written, or was
// cleared, yields false or 0.
type Device struct {
	id uint8

	coils          bitBank
	discreteInputs bitBank
	inputRegs      wordBank
	holdingRegs    wordBank
}

// NewDevice creates a device with all banks at their defaults. The zero Device is
// usable as well and answers to unit id 0.
func NewDevice(id uint8) *Device {
	return &Device{id: id}
}

// ID returns the unit identifier the device answers to.
func (d *Device) ID() uint8 {
	return d.id
}

// GetCoil returns the coil at address.
func (d *Device) GetCoil(address uint16) Coil {
	return Coil{Address: address, Value: d.coils.get(address)}
}

// SetCoil sets the coil at address.
func (d *Device) SetCoil(address uint16, value bool) {
	d.coils.set(address, value)
}

// Coils returns quantity coils starting at start.
func (d *Device) Coils(start, quantity uint16) []bool {
	return d.coils.getRange(start, quantity)
}

// SetCoils writes values to consecutive coils starting at start.
func (d *Device) SetCoils(start uint16, values []bool) {
	d.coils.setRange(start, values)
}

// GetInput returns the discrete input at address.
func (d *Device) GetInput(address uint16) DiscreteInput {
	return DiscreteInput{Address: address, Value: d.discreteInputs.get(address)}
}

// SetInput sets the discrete input at address.
func (d *Device) SetInput(address uint16, value bool) {
	d.discreteInputs.set(address, value)
}

// Inputs returns quantity discrete inputs starting at start.
func (d *Device) Inputs(start, quantity uint16) []bool {
	return d.discreteInputs.getRange(start, quantity)
}

// GetInputRegister returns the input register at address.
func (d *Device) GetInputRegister(address uint16) Register {
	return Register{Address: address, Value: d.inputRegs.get(address), Type: InputRegister}
}

// SetInputRegister stores value at address. Storing 0 clears the address.
func (d *Device) SetInputRegister(address, value uint16) {
	d.inputRegs.set(address, value)
}

// InputRegisters returns quantity input register values starting at start.
func (d *Device) InputRegisters(start, quantity uint16) []uint16 {
	return d.inputRegs.getRange(start, quantity)
}

// GetHoldingRegister returns the holding register at address.
func (d *Device) GetHoldingRegister(address uint16) Register {
	return Register{Address: address, Value: d.holdingRegs.get(address), Type: HoldingRegister}
}

// SetHoldingRegister stores value at address. Storing 0 clears the address.
func (d *Device) SetHoldingRegister(address, value uint16) {
	d.holdingRegs.set(address, value)
}

// HoldingRegisters returns quantity holding register values starting at start.
func (d *Device) HoldingRegisters(start, quantity uint16) []uint16 {
	return d.holdingRegs.getRange(start, quantity)
}

// SetHoldingRegisters writes values to consecutive holding registers starting at start.
func (d *Device) SetHoldingRegisters(start uint16, values []uint16) {
	d.holdingRegs.setRange(start, values)
}

// bitBank is the set of addresses currently true.
type bitBank struct {
	mu   sync.RWMutex
	bits map[uint16]struct{}
}

func (b *bitBank) get(address uint16) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.bits[address]
	return ok
}

func (b *bitBank) set(address uint16, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.put(address, value)
}

func (b *bitBank) getRange(start, quantity uint16) []bool {
	out := make([]bool, quantity)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := range out {
		_, out[i] = b.bits[start+uint16(i)]
	}
	return out
}

func (b *bitBank) setRange(start uint16, values []bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range values {
		b.put(start+uint16(i), v)
	}
}

// put requires b.mu to be held for writing.
func (b *bitBank) put(address uint16, value bool) {
	if value {
		if b.bits == nil {
			b.bits = make(map[uint16]struct{})
		}
		b.bits[address] = struct{}{}
		return
	}
	delete(b.bits, address)
}

// wordBank maps addresses to non-zero words.
type wordBank struct {
	mu    sync.RWMutex
	words map[uint16]uint16
}

func (b *wordBank) get(address uint16) uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.words[address]
}

func (b *wordBank) set(address, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.put(address, value)
}

func (b *wordBank) getRange(start, quantity uint16) []uint16 {
	out := make([]uint16, quantity)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := range out {
		out[i] = b.words[start+uint16(i)]
	}
	return out
}

func (b *wordBank) setRange(start uint16, values []uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range values {
		b.put(start+uint16(i), v)
	}
}

// put requires b.mu to be held for writing.
func (b *wordBank) put(address, value uint16) {
	if value == 0 {
		delete(b.words, address)
		return
	}
	if b.words == nil {
		b.words = make(map[uint16]uint16)
	}
	b.words[address] = value
}
