package modsim

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Append(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recorder) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

func freeURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

func newTestServer(t *testing.T, url string) (*ModbusServer, *recorder) {
	t.Helper()
	events := &recorder{}
	s, err := NewModbusServer(Serial{Url: url, Timeout: 1000}, events, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, events
}

func TestNewModbusServer_InvalidURL(t *testing.T) {
	tests := map[string]string{
		"no scheme":   "localhost:502",
		"empty host":  "tcp://",
		"bad scheme":  "udp://localhost:502",
		"empty input": "",
	}
	for name, url := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewModbusServer(Serial{Url: url}, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestModbusServer_Slaves(t *testing.T) {
	s, events := newTestServer(t, "tcp://localhost:5502")
	require.NoError(t, s.Attach(NewDevice(7)))
	require.NoError(t, s.Attach(NewDevice(3)))

	assert.False(t, s.Online(3), "attached slaves start offline")
	s.Connect(3)
	assert.True(t, s.Online(3))
	assert.True(t, events.contains("tcp://localhost:5502:3: connected"))
	s.Disconnect(3)
	assert.False(t, s.Online(3))
	assert.True(t, events.contains(":3: disconnected"))

	s.Connect(99)
	assert.False(t, s.Online(99))

	err := s.Attach(NewDevice(7))
	assert.ErrorIs(t, err, ErrDuplicateSlave)

	d, ok := s.Device(7)
	require.True(t, ok)
	assert.Equal(t, uint8(7), d.ID())
	_, ok = s.Device(8)
	assert.False(t, ok)

	ids := []uint8{}
	for _, d := range s.Devices() {
		ids = append(ids, d.ID())
	}
	assert.Equal(t, []uint8{3, 7}, ids)
}

func TestModbusServer_Handlers(t *testing.T) {
	s, _ := newTestServer(t, "tcp://localhost:5502")
	d := NewDevice(5)
	require.NoError(t, s.Attach(d))
	s.Connect(5)

	d.SetInput(1, true)
	d.SetInputRegister(2, 22)

	_, err := s.HandleCoils(&modbus.CoilsRequest{UnitId: 5, Addr: 10, IsWrite: true, Args: []bool{true, true}})
	require.NoError(t, err)
	coils, err := s.HandleCoils(&modbus.CoilsRequest{UnitId: 5, Addr: 9, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, false}, coils)

	inputs, err := s.HandleDiscreteInputs(&modbus.DiscreteInputsRequest{UnitId: 5, Addr: 0, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, inputs)

	_, err = s.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 5, Addr: 100, IsWrite: true, Args: []uint16{42, 0}})
	require.NoError(t, err)
	regs, err := s.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 5, Addr: 100, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint16{42, 0}, regs)
	assert.Equal(t, 1, d.holdingRegs.count())

	words, err := s.HandleInputRegisters(&modbus.InputRegistersRequest{UnitId: 5, Addr: 2, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint16{22}, words)
}

func TestModbusServer_HandlerErrors(t *testing.T) {
	s, events := newTestServer(t, "tcp://localhost:5502")
	require.NoError(t, s.Attach(NewDevice(1)))
	require.NoError(t, s.Attach(NewDevice(2)))
	s.Connect(1)

	tests := map[string]struct {
		call func() error
		want error
	}{
		"unknown unit": {
			call: func() error {
				_, err := s.HandleCoils(&modbus.CoilsRequest{UnitId: 9, Quantity: 1})
				return err
			},
			want: modbus.ErrGWTargetFailedToRespond,
		},
		"offline unit": {
			call: func() error {
				_, err := s.HandleInputRegisters(&modbus.InputRegistersRequest{UnitId: 2, Quantity: 1})
				return err
			},
			want: modbus.ErrGWTargetFailedToRespond,
		},
		"range overflow": {
			call: func() error {
				_, err := s.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 1, Addr: 0xfffe, Quantity: 3})
				return err
			},
			want: modbus.ErrIllegalDataAddress,
		},
		"write overflow": {
			call: func() error {
				_, err := s.HandleCoils(&modbus.CoilsRequest{UnitId: 1, Addr: 0xffff, IsWrite: true, Args: []bool{true, true}})
				return err
			},
			want: modbus.ErrIllegalDataAddress,
		},
		"zero quantity": {
			call: func() error {
				_, err := s.HandleDiscreteInputs(&modbus.DiscreteInputsRequest{UnitId: 1, Addr: 0})
				return err
			},
			want: modbus.ErrIllegalDataValue,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}

	assert.True(t, events.contains("req: slave id: 2 is offline"))

	// the last address is still addressable
	d, _ := s.Device(1)
	_, err := s.HandleHoldingRegisters(&modbus.HoldingRegistersRequest{UnitId: 1, Addr: 0xffff, IsWrite: true, Args: []uint16{9}})
	require.NoError(t, err)
	assert.Equal(t, uint16(9), d.GetHoldingRegister(0xffff).Value)
}

func TestModbusServer_Loopback(t *testing.T) {
	url := freeURL(t)
	s, events := newTestServer(t, url)
	d := NewDevice(5)
	d.SetInput(4, true)
	d.SetInputRegister(8, 800)
	require.NoError(t, s.Attach(d))
	require.NoError(t, s.Attach(NewDevice(6)))
	s.Connect(5)

	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	client, err := modbus.NewClient(&modbus.ClientConfiguration{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, client.Open())
	defer func() { _ = client.Close() }()
	require.NoError(t, client.SetUnitId(5))

	require.NoError(t, client.WriteCoil(10, true))
	assert.True(t, d.GetCoil(10).Value)
	on, err := client.ReadCoil(10)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, client.WriteRegister(100, 42))
	assert.Equal(t, Register{Address: 100, Value: 42, Type: HoldingRegister}, d.GetHoldingRegister(100))
	require.NoError(t, client.WriteRegister(100, 0))
	v, err := client.ReadRegister(100, modbus.HOLDING_REGISTER)
	require.NoError(t, err)
	assert.Zero(t, v)

	in, err := client.ReadDiscreteInputs(3, 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, in)

	words, err := client.ReadRegisters(8, 2, modbus.INPUT_REGISTER)
	require.NoError(t, err)
	assert.Equal(t, []uint16{800, 0}, words)

	require.NoError(t, client.SetUnitId(6))
	_, err = client.ReadCoil(0)
	assert.ErrorIs(t, err, modbus.ErrGWTargetFailedToRespond)

	assert.True(t, events.contains(fmt.Sprintf("listening on %s", url)))
}

func TestModbusServer_LibraryWarningsGoToZap(t *testing.T) {
	url := freeURL(t)
	core, logs := observer.New(zapcore.WarnLevel)
	s, err := NewModbusServer(Serial{Url: url, Timeout: 1000}, nil, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, s.Attach(NewDevice(1)))
	s.Connect(1)
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	conn, err := net.Dial("tcp", strings.TrimPrefix(url, "tcp://"))
	require.NoError(t, err)
	defer conn.Close()

	// read coils with a quantity of 0
	_, err = conn.Write([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, e := range logs.All() {
			if strings.Contains(e.Message, "protocol error") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, zapcore.WarnLevel, logs.FilterMessageSnippet("protocol error").All()[0].Level)
}
