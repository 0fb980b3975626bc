// Modsim simulates modbus slaves. Every slave is backed by an in-memory register store
// that network clients and the terminal UI read and write concurrently.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rwirdemann/modsim"
	"github.com/rwirdemann/modsim/modbus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:   "modsim",
		Usage:  "modbus slave simulator",
		Action: simulateCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				EnvVars: []string{"MODSIM_CONFIG"},
				Value:   "config",
				Usage:   "directory containing config.json",
			},
			&cli.BoolFlag{
				Name:    "headless",
				EnvVars: []string{"MODSIM_HEADLESS"},
				Usage:   "serve without the terminal UI",
			},
			&cli.BoolFlag{
				Name:    "gui",
				EnvVars: []string{"MODSIM_GUI"},
				Usage:   "use the desktop front-end (binaries built with -tags gui)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
			&cli.StringFlag{
				Name:    "log-file",
				EnvVars: []string{"LOG_FILE"},
				Usage:   "log destination, defaults to stdout when headless and modsim.log otherwise",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "read",
				Usage:  "read a single value from a running slave",
				Flags:  clientFlags(),
				Action: readCommand,
			},
			{
				Name:  "write",
				Usage: "write a coil or holding register of a running slave",
				Flags: append(clientFlags(), &cli.UintFlag{
					Name:     "value",
					Required: true,
				}),
				Action: writeCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			EnvVars: []string{"MODSIM_URL"},
			Value:   "tcp://localhost:502",
		},
		&cli.UintFlag{
			Name:  "slave",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "kind",
			Value: modsim.KindHolding,
			Usage: "coil | discrete | input | holding",
		},
		&cli.UintFlag{
			Name:     "address",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "timeout",
			Value: 1000,
			Usage: "timeout in milliseconds",
		},
	}
}

func newLogger(level, output string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()

	var err error
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{output}
	logCfg.ErrorOutputPaths = []string{output}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func simulateCommand(ctx *cli.Context) error {
	headless := ctx.Bool("headless")
	frontEnd := frontEndTerminal
	switch {
	case headless && ctx.Bool("gui"):
		return errors.New("--headless and --gui are mutually exclusive")
	case headless:
		frontEnd = frontEndNone
	case ctx.Bool("gui"):
		frontEnd = frontEndDesktop
	}
	output := ctx.String("log-file")
	if output == "" {
		output = "modsim.log"
		if headless {
			output = "stdout"
		}
	}
	logger, err := newLogger(ctx.String("log-level"), output)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()

	config, err := modsim.LoadConfig(ctx.String("config"))
	if err != nil {
		return err
	}

	sim, err := newSimulator(config, newEventLog(100), logger)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(sigCtx, sim, frontEnd)
}

func newClient(ctx *cli.Context) (modbus.Adapter, modbus.Value, error) {
	if ctx.Uint("address") > 0xffff || ctx.Uint("slave") > 0xff {
		return modbus.Adapter{}, modbus.Value{}, fmt.Errorf("address or slave out of range")
	}
	v := modbus.Value{
		SlaveAddress: uint8(ctx.Uint("slave")),
		Point: modsim.Point{
			Kind:    ctx.String("kind"),
			Address: uint16(ctx.Uint("address")),
		},
	}
	a, err := modbus.NewAdapter(modsim.Serial{Url: ctx.String("url"), Timeout: ctx.Int("timeout")})
	if err != nil {
		return modbus.Adapter{}, modbus.Value{}, err
	}
	return a, v, nil
}

func readCommand(ctx *cli.Context) error {
	a, v, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err = a.Read(v.SlaveAddress, v.Point)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "%d %s = %d\n", v.SlaveAddress, v.Point, v.Value)
	return nil
}

func writeCommand(ctx *cli.Context) error {
	if ctx.Uint("value") > 0xffff {
		return fmt.Errorf("value out of range: %d", ctx.Uint("value"))
	}
	a, v, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	v.Value = uint16(ctx.Uint("value"))
	return a.Write(v)
}
