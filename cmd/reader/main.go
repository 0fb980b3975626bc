// Reader polls a range of one register bank of a modbus slave and prints the values.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rwirdemann/modsim"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "reader",
		Usage:  "read a range of coils, discrete inputs or registers",
		Action: readerCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				EnvVars: []string{"MODSIM_URL"},
				Value:   "localhost:502",
				Usage:   "host:port, a tcp:// prefix is accepted",
			},
			&cli.UintFlag{Name: "slave", Value: 1},
			&cli.StringFlag{Name: "kind", Value: modsim.KindDiscrete},
			&cli.UintFlag{Name: "address", Value: 0},
			&cli.UintFlag{Name: "quantity", Value: 1},
			&cli.DurationFlag{Name: "timeout", Value: time.Second},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func readerCommand(ctx *cli.Context) error {
	slave, address, quantity, err := checkArgs(ctx.Uint("slave"), ctx.Uint("address"), ctx.Uint("quantity"))
	if err != nil {
		return err
	}

	handler := modbus.NewTCPClientHandler(strings.TrimPrefix(ctx.String("url"), "tcp://"))
	handler.Timeout = ctx.Duration("timeout")
	handler.SlaveId = slave

	if err := handler.Connect(); err != nil {
		return err
	}
	defer handler.Close()

	return read(modbus.NewClient(handler), ctx.App.Writer, ctx.String("kind"), address, quantity)
}

// checkArgs narrows the flag values to their protocol widths.
func checkArgs(slave, address, quantity uint) (byte, uint16, uint16, error) {
	switch {
	case slave > 0xff:
		return 0, 0, 0, fmt.Errorf("slave out of range: %d", slave)
	case address > 0xffff:
		return 0, 0, 0, fmt.Errorf("address out of range: %d", address)
	case quantity == 0 || quantity > 0xffff || address+quantity > 0x10000:
		return 0, 0, 0, fmt.Errorf("quantity out of range: %d at address %d", quantity, address)
	}
	return byte(slave), uint16(address), uint16(quantity), nil
}

func read(client modbus.Client, w io.Writer, kind string, address, quantity uint16) error {
	var (
		bb  []byte
		err error
	)
	switch kind {
	case modsim.KindCoil:
		bb, err = client.ReadCoils(address, quantity)
	case modsim.KindDiscrete:
		bb, err = client.ReadDiscreteInputs(address, quantity)
	case modsim.KindInput:
		bb, err = client.ReadInputRegisters(address, quantity)
	case modsim.KindHolding:
		bb, err = client.ReadHoldingRegisters(address, quantity)
	default:
		return fmt.Errorf("%w: %s", modsim.ErrUnknownKind, kind)
	}
	if err != nil {
		return err
	}

	switch kind {
	case modsim.KindCoil, modsim.KindDiscrete:
		for i, b := range decodeBits(bb, quantity) {
			fmt.Fprintf(w, "%s %d: %t\n", kind, address+uint16(i), b)
		}
	default:
		for i, v := range decodeWords(bb) {
			fmt.Fprintf(w, "%s %d: %d\n", kind, address+uint16(i), v)
		}
	}
	return nil
}

func decodeBits(bb []byte, quantity uint16) []bool {
	out := make([]bool, 0, quantity)
	for i := range int(quantity) {
		if i/8 >= len(bb) {
			break
		}
		out = append(out, bb[i/8]&(0x01<<(i%8)) != 0)
	}
	return out
}

func decodeWords(bb []byte) []uint16 {
	out := make([]uint16, len(bb)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(bb[2*i:])
	}
	return out
}
