package modsim

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// EventLog receives human readable, timestamped lines about connections and requests.
type EventLog interface {
	Append(text string)
}

type nopEventLog struct{}

func (nopEventLog) Append(string) {}

// ModbusServer represents a TCP based modbus server with multiple slaves connected to it.
// Every slave is backed by a Device; requests for a unit id that is unknown or offline are
// answered with a gateway exception, which tells the client that nobody responded.
type ModbusServer struct {
	url    string
	events EventLog
	logger *zap.Logger
	server *modbus.ModbusServer

	mu     sync.RWMutex
	slaves map[uint8]*slave
}

type slave struct {
	device *Device
	online bool
}

func NewModbusServer(cfg Serial, events EventLog, logger *zap.Logger) (*ModbusServer, error) {
	splitURL := strings.SplitN(cfg.Url, "://", 2)
	if len(splitURL) != 2 || splitURL[1] == "" {
		return nil, fmt.Errorf("invalid url: %q", cfg.Url)
	}
	if events == nil {
		events = nopEventLog{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ModbusServer{
		url:    cfg.Url,
		events: events,
		logger: logger.With(zap.String("url", cfg.Url)),
		slaves: make(map[uint8]*slave),
	}

	// the library's own warnings (protocol errors, rejected clients) go through zap
	stdLog, err := zap.NewStdLogAt(s.logger, zap.WarnLevel)
	if err != nil {
		return nil, fmt.Errorf("create server logger: %w", err)
	}
	s.server, err = modbus.NewServer(&modbus.ServerConfiguration{
		URL:        cfg.Url,
		Timeout:    time.Duration(cfg.Timeout) * time.Millisecond,
		MaxClients: cfg.MaxClients,
		Logger:     stdLog,
	}, s)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	return s, nil
}

func (s *ModbusServer) URL() string {
	return s.url
}

func (s *ModbusServer) Start() error {
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.url, err)
	}
	s.logger.Info("modbus server started")
	s.appendEvent("listening on %s", s.url)
	return nil
}

func (s *ModbusServer) Stop() error {
	if err := s.server.Stop(); err != nil {
		return fmt.Errorf("stop %s: %w", s.url, err)
	}
	s.logger.Info("modbus server stopped")
	return nil
}

// ErrDuplicateSlave is returned by Attach when the unit id is already taken.
var ErrDuplicateSlave = errors.New("duplicate slave address")

// Attach makes d reachable under its unit id. The slave stays offline until Connect.
func (s *ModbusServer) Attach(d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slaves[d.ID()]; ok {
		return fmt.Errorf("%w: %s:%d", ErrDuplicateSlave, s.url, d.ID())
	}
	s.slaves[d.ID()] = &slave{device: d}
	return nil
}

// Connect brings the slave online. Unknown ids are ignored.
func (s *ModbusServer) Connect(slaveID uint8) {
	s.setOnline(slaveID, true)
}

// Disconnect takes the slave offline. Unknown ids are ignored.
func (s *ModbusServer) Disconnect(slaveID uint8) {
	s.setOnline(slaveID, false)
}

func (s *ModbusServer) setOnline(slaveID uint8, online bool) {
	s.mu.Lock()
	sl, ok := s.slaves[slaveID]
	if ok {
		sl.online = online
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if online {
		s.appendEvent("%s:%d: connected", s.url, slaveID)
	} else {
		s.appendEvent("%s:%d: disconnected", s.url, slaveID)
	}
}

func (s *ModbusServer) Online(slaveID uint8) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slaves[slaveID]
	return ok && sl.online
}

func (s *ModbusServer) Device(slaveID uint8) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slaves[slaveID]
	if !ok {
		return nil, false
	}
	return sl.device, true
}

// Devices returns all attached devices ordered by unit id.
func (s *ModbusServer) Devices() []*Device {
	s.mu.RLock()
	dd := make([]*Device, 0, len(s.slaves))
	for _, sl := range s.slaves {
		dd = append(dd, sl.device)
	}
	s.mu.RUnlock()
	sort.Slice(dd, func(i, j int) bool { return dd[i].ID() < dd[j].ID() })
	return dd
}

// HandleCoils implements modbus.RequestHandler.
func (s *ModbusServer) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	quantity := req.Quantity
	if req.IsWrite {
		quantity = uint16(len(req.Args))
	}
	d, err := s.lookup(req.UnitId, "coils", req.IsWrite, req.Addr, quantity)
	if err != nil {
		return nil, err
	}
	if req.IsWrite {
		d.SetCoils(req.Addr, req.Args)
		s.appendEvent("res: slave id: %d wrote %d coils at %d", req.UnitId, len(req.Args), req.Addr)
		return nil, nil
	}
	res := d.Coils(req.Addr, req.Quantity)
	s.appendEvent("res: slave id: %d coils %v", req.UnitId, res)
	return res, nil
}

// HandleDiscreteInputs implements modbus.RequestHandler.
func (s *ModbusServer) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	d, err := s.lookup(req.UnitId, "discrete inputs", false, req.Addr, req.Quantity)
	if err != nil {
		return nil, err
	}
	res := d.Inputs(req.Addr, req.Quantity)
	s.appendEvent("res: slave id: %d discrete inputs %v", req.UnitId, res)
	return res, nil
}

// HandleHoldingRegisters implements modbus.RequestHandler.
func (s *ModbusServer) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	quantity := req.Quantity
	if req.IsWrite {
		quantity = uint16(len(req.Args))
	}
	d, err := s.lookup(req.UnitId, "holding registers", req.IsWrite, req.Addr, quantity)
	if err != nil {
		return nil, err
	}
	if req.IsWrite {
		d.SetHoldingRegisters(req.Addr, req.Args)
		s.appendEvent("res: slave id: %d wrote % X at %d", req.UnitId, req.Args, req.Addr)
		return nil, nil
	}
	res := d.HoldingRegisters(req.Addr, req.Quantity)
	s.appendEvent("res: slave id: %d holding registers % X", req.UnitId, res)
	return res, nil
}

// HandleInputRegisters implements modbus.RequestHandler.
func (s *ModbusServer) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	d, err := s.lookup(req.UnitId, "input registers", false, req.Addr, req.Quantity)
	if err != nil {
		return nil, err
	}
	res := d.InputRegisters(req.Addr, req.Quantity)
	s.appendEvent("res: slave id: %d input registers % X", req.UnitId, res)
	return res, nil
}

// lookup resolves the addressed device and checks the requested range, which the
// device itself never does.
func (s *ModbusServer) lookup(unitID uint8, bank string, write bool, addr, quantity uint16) (*Device, error) {
	action := "read"
	if write {
		action = "write"
	}
	s.appendEvent("req: slave id: %d %s %s addr: %d qty: %d", unitID, action, bank, addr, quantity)
	s.logger.Debug("request",
		zap.Uint8("unit_id", unitID),
		zap.String("bank", bank),
		zap.String("action", action),
		zap.Uint16("addr", addr),
		zap.Uint16("quantity", quantity))

	s.mu.RLock()
	sl, ok := s.slaves[unitID]
	online := ok && sl.online
	s.mu.RUnlock()
	if !online {
		s.appendEvent("req: slave id: %d is offline", unitID)
		return nil, modbus.ErrGWTargetFailedToRespond
	}

	if err := checkRange(addr, quantity); err != nil {
		s.logger.Warn("rejected request", zap.Uint8("unit_id", unitID), zap.String("bank", bank), zap.Error(err))
		return nil, err
	}
	return sl.device, nil
}

func checkRange(addr, quantity uint16) error {
	if quantity == 0 {
		return modbus.ErrIllegalDataValue
	}
	if uint32(addr)+uint32(quantity) > 0x10000 {
		return modbus.ErrIllegalDataAddress
	}
	return nil
}

func (s *ModbusServer) appendEvent(format string, args ...any) {
	ts := time.Now().Format(time.DateTime)
	s.events.Append(ts + " " + fmt.Sprintf(format, args...))
}
