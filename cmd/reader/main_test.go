package main

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rwirdemann/modsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecode(t *testing.T) {
	assert.Equal(t, []bool{true, false, true, false, false, false, false, false, true}, decodeBits([]byte{0x05, 0x01}, 9))
	assert.Equal(t, []bool{true}, decodeBits([]byte{0x01}, 3)[:1])
	assert.Equal(t, []uint16{0x0102, 0xffff}, decodeWords([]byte{0x01, 0x02, 0xff, 0xff}))
}

func TestRead(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s, err := modsim.NewModbusServer(modsim.Serial{Url: "tcp://" + addr, Timeout: 1000}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	d := modsim.NewDevice(101)
	d.SetInput(0x7e3, true)
	d.SetHoldingRegister(11, 1100)
	require.NoError(t, s.Attach(d))
	s.Connect(101)
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	handler := modbus.NewTCPClientHandler(addr)
	handler.Timeout = time.Second
	handler.SlaveId = 101
	require.NoError(t, handler.Connect())
	defer handler.Close()
	client := modbus.NewClient(handler)

	var out bytes.Buffer
	require.NoError(t, read(client, &out, modsim.KindDiscrete, 0x7e2, 2))
	assert.Equal(t, "discrete 2018: false\ndiscrete 2019: true\n", out.String())

	out.Reset()
	require.NoError(t, read(client, &out, modsim.KindHolding, 10, 2))
	assert.Equal(t, "holding 10: 0\nholding 11: 1100\n", out.String())

	assert.ErrorIs(t, read(client, &out, "fifo", 0, 1), modsim.ErrUnknownKind)
}

func TestCheckArgs(t *testing.T) {
	tests := map[string]struct {
		slave, address, quantity uint
		wantErr                  bool
	}{
		"valid":            {slave: 101, address: 0x7e3, quantity: 2},
		"last address":     {slave: 255, address: 0xffff, quantity: 1},
		"slave too large":  {slave: 256, address: 0, quantity: 1, wantErr: true},
		"address too high": {slave: 1, address: 70000, quantity: 1, wantErr: true},
		"zero quantity":    {slave: 1, address: 0, quantity: 0, wantErr: true},
		"range overflow":   {slave: 1, address: 0xffff, quantity: 2, wantErr: true},
		"quantity too big": {slave: 1, address: 0, quantity: 0x10000, wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			slave, address, quantity, err := checkArgs(tt.slave, tt.address, tt.quantity)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, byte(tt.slave), slave)
			assert.Equal(t, uint16(tt.address), address)
			assert.Equal(t, uint16(tt.quantity), quantity)
		})
	}
}
