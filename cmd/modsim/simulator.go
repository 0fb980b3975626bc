package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rwirdemann/modsim"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// slaveEntry is a row of the slave table. It holds a reference to the server it belongs
// to in order to switch the slave online or offline.
type slaveEntry struct {
	modsim.Slave
	server *modsim.ModbusServer
	device *modsim.Device
	points []modsim.Point
}

type simulator struct {
	servers []*modsim.ModbusServer
	slaves  []slaveEntry
	events  *eventLog
	logger  *zap.Logger
}

// newSimulator creates one server per serial entry and attaches a seeded device for
// every configured slave.
func newSimulator(config modsim.Config, events *eventLog, logger *zap.Logger) (*simulator, error) {
	sim := &simulator{events: events, logger: logger}
	for _, serial := range config.Serials {
		ms, err := modsim.NewModbusServer(serial, events, logger)
		if err != nil {
			return nil, err
		}
		sim.servers = append(sim.servers, ms)

		for _, s := range serial.Slaves {
			d := s.NewDevice()
			if err := ms.Attach(d); err != nil {
				return nil, err
			}
			if s.Online {
				ms.Connect(s.Address)
			}
			sim.slaves = append(sim.slaves, slaveEntry{
				Slave:  s,
				server: ms,
				device: d,
				points: s.Points(),
			})
		}
	}
	if len(sim.slaves) == 0 {
		return nil, errors.New("no slaves configured")
	}
	return sim, nil
}

func (sim *simulator) start() error {
	for _, ms := range sim.servers {
		if err := ms.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (sim *simulator) stop() {
	for _, ms := range sim.servers {
		if err := ms.Stop(); err != nil {
			sim.logger.Warn("failed to stop server", zap.String("url", ms.URL()), zap.Error(err))
		}
	}
}

// toggle flips the online state of slave i.
func (sim *simulator) toggle(i int) {
	s := sim.slaves[i]
	if s.server.Online(s.Address) {
		s.server.Disconnect(s.Address)
	} else {
		s.server.Connect(s.Address)
	}
}

const (
	frontEndNone = iota
	frontEndTerminal
	frontEndDesktop
)

// run serves all slaves until ctx is done or the user quits the front-end.
func run(ctx context.Context, sim *simulator, frontEnd int) error {
	if err := sim.start(); err != nil {
		sim.stop()
		return fmt.Errorf("start simulator: %w", err)
	}
	defer sim.stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	if frontEnd == frontEndTerminal {
		eg.Go(func() error {
			defer cancel()
			p := tea.NewProgram(newModel(sim), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		sim.logger.Info("shutting down")
		return nil
	})

	// the desktop toolkit wants the calling goroutine
	if frontEnd == frontEndDesktop {
		err := runDesktop(ctx, sim)
		cancel()
		if werr := eg.Wait(); err == nil {
			err = werr
		}
		return err
	}

	return eg.Wait()
}

// eventLog keeps the most recent lines for the log panel. Servers append from their
// client goroutines while the UI reads.
type eventLog struct {
	mu       sync.Mutex
	items    []string
	maxItems int
}

func newEventLog(maxItems int) *eventLog {
	return &eventLog{maxItems: maxItems}
}

func (l *eventLog) Append(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
	if len(l.items) > l.maxItems {
		l.items = l.items[len(l.items)-l.maxItems:]
	}
}

// Tail returns up to n of the most recent lines, oldest first.
func (l *eventLog) Tail(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(l.items) {
		n = len(l.items)
	}
	out := make([]string, n)
	copy(out, l.items[len(l.items)-n:])
	return out
}
