// Package serialbridge owns the host side of the serial link: it opens the
// port, keeps a cached snapshot of the device state from the event stream,
// and forwards commands down the wire.
package serialbridge

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Handler receives the value part of one device event.
type Handler func(value string)

// EventHandler receives every device event, key and value.
type EventHandler func(key, value string)

// Snapshot is the host's view of the device, built from received events.
type Snapshot struct {
	Connected bool      `json:"connected"`
	Port      string    `json:"port"`
	LastSeen  time.Time `json:"last_seen"`

	Mode     string `json:"mode"`
	Motor    string `json:"motor_state"`
	Position string `json:"position"`
	Light    int    `json:"light"`

	Calibrated bool `json:"calibrated"`
	LightMin   int  `json:"light_min"`
	LightMax   int  `json:"light_max"`

	OpenThreshold  int `json:"open_threshold"`
	CloseThreshold int `json:"close_threshold"`

	FirmwareVersion string `json:"firmware_version"`
	UptimeMS        int64  `json:"uptime_ms"`
}

// Manager connects to the device and keeps the connection alive.
type Manager struct {
	portName  string
	baud      int
	reconnect time.Duration
	settle    time.Duration
	open      func(name string, mode *serial.Mode) (serial.Port, error)

	mu       sync.RWMutex
	port     serial.Port
	state    Snapshot
	handlers map[string][]Handler
	anyAll   []EventHandler
}

func New(portName string, baud int) *Manager {
	return &Manager{
		portName:  portName,
		baud:      baud,
		reconnect: 5 * time.Second,
		settle:    2 * time.Second,
		open:      serial.Open,
		state: Snapshot{
			Port:     portName,
			Mode:     "manual",
			Motor:    "stopped",
			Position: "unknown",
		},
		handlers: map[string][]Handler{},
	}
}

// On registers a handler for one event key (e.g. "LIGHT").
func (m *Manager) On(key string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = append(m.handlers[key], h)
}

// OnAny registers a handler for every event.
func (m *Manager) OnAny(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anyAll = append(m.anyAll, h)
}

// Run keeps the serial link up until the context ends, reconnecting with a
// fixed backoff when the port disappears.
func (m *Manager) Run(ctx context.Context) {
	for {
		if err := m.connect(ctx); err != nil {
			logrus.Errorf("serial: connect %s: %s", m.portName, err)
		} else {
			m.readLoop(ctx)
		}

		// release the dead port before the retry, a reconnect loop must
		// not accumulate fds
		m.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.reconnect):
		}
	}
}

func (m *Manager) connect(ctx context.Context) error {
	logrus.Infof("serial: opening %s at %d baud", m.portName, m.baud)

	port, err := m.open(m.portName, &serial.Mode{BaudRate: m.baud})
	if err != nil {
		return errors.Wrap(err, "open port")
	}

	m.mu.Lock()
	m.port = port
	m.state.Connected = true
	m.state.LastSeen = time.Now()
	m.mu.Unlock()

	// give the device time to finish its boot banner, then align the mode
	// with what the host assumes and ask for a full report
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.settle):
	}
	if err := m.Send("MANUAL_MODE"); err != nil {
		return err
	}
	return m.Send("GET_STATUS")
}

func (m *Manager) readLoop(ctx context.Context) {
	m.mu.RLock()
	port := m.port
	m.mu.RUnlock()
	if port == nil {
		return
	}

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		logrus.Errorf("serial: read: %s", err)
	}
}

// handleLine parses one KEY:VALUE event line and routes it.
func (m *Manager) handleLine(line string) {
	key, value := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		key, value = line[:i], line[i+1:]
	}
	key = strings.ToUpper(key)

	logrus.Debugf("serial: << %s", line)
	m.apply(key, value)

	m.mu.RLock()
	keyed := append([]Handler(nil), m.handlers[key]...)
	all := append([]EventHandler(nil), m.anyAll...)
	m.mu.RUnlock()

	for _, h := range keyed {
		h(value)
	}
	for _, h := range all {
		h(key, value)
	}
}

func (m *Manager) apply(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastSeen = time.Now()

	switch key {
	case "LIGHT":
		if v, err := strconv.Atoi(value); err == nil {
			m.state.Light = v
		}
	case "POSITION":
		m.state.Position = strings.ToLower(value)
	case "MOTOR":
		m.state.Motor = strings.ToLower(value)
	case "MODE":
		m.state.Mode = strings.ToLower(value)
	case "OPEN_THRESHOLD":
		if v, err := strconv.Atoi(value); err == nil {
			m.state.OpenThreshold = v
		}
	case "CLOSE_THRESHOLD":
		if v, err := strconv.Atoi(value); err == nil {
			m.state.CloseThreshold = v
		}
	case "CALIBRATION":
		m.applyCalibration(value)
	case "VERSION":
		m.state.FirmwareVersion = value
	case "READY":
		logrus.Infof("serial: device ready: %s", value)
	case "UPTIME":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			m.state.UptimeMS = v
		}
	case "ERROR":
		logrus.Errorf("serial: device error: %s", value)
	}
}

// applyCalibration parses "YES,MIN:100,MAX:900" style payloads. "START" and
// other single-token payloads leave the bounds alone.
func (m *Manager) applyCalibration(value string) {
	for _, part := range strings.Split(value, ",") {
		switch {
		case part == "YES":
			m.state.Calibrated = true
		case part == "NO":
			m.state.Calibrated = false
		case strings.HasPrefix(part, "MIN:"):
			if v, err := strconv.Atoi(part[4:]); err == nil {
				m.state.LightMin = v
			}
		case strings.HasPrefix(part, "MAX:"):
			if v, err := strconv.Atoi(part[4:]); err == nil {
				m.state.LightMax = v
			}
		}
	}
}

// Send writes one command line, NAME or NAME:PARAM.
func (m *Manager) Send(cmd string, param ...string) error {
	m.mu.RLock()
	port := m.port
	connected := m.state.Connected
	m.mu.RUnlock()

	if !connected || port == nil {
		return errors.Errorf("serial: cannot send %s: not connected", cmd)
	}

	line := cmd
	if len(param) > 0 {
		line += ":" + param[0]
	}
	logrus.Debugf("serial: >> %s", line)

	if _, err := port.Write([]byte(line + "\n")); err != nil {
		m.setConnected(false)
		return errors.Wrapf(err, "serial: send %s", cmd)
	}
	return nil
}

func (m *Manager) OpenCurtain() error  { return m.Send("OPEN_CURTAIN") }
func (m *Manager) CloseCurtain() error { return m.Send("CLOSE_CURTAIN") }
func (m *Manager) StopMotor() error    { return m.Send("STOP_MOTOR") }
func (m *Manager) Calibrate() error    { return m.Send("CALIBRATE_LIGHT") }
func (m *Manager) ReadLight() error    { return m.Send("READ_LIGHT") }
func (m *Manager) RequestStatus() error { return m.Send("GET_STATUS") }
func (m *Manager) Ping() error         { return m.Send("PING") }

func (m *Manager) SetOpenThreshold(v int) error {
	return m.Send("SET_OPEN_THRESHOLD", strconv.Itoa(v))
}

func (m *Manager) SetCloseThreshold(v int) error {
	return m.Send("SET_CLOSE_THRESHOLD", strconv.Itoa(v))
}

func (m *Manager) SetSpeed(v int) error {
	return m.Send("SET_SPEED", strconv.Itoa(v))
}

// SetMode switches the device between "auto" and "manual".
func (m *Manager) SetMode(mode string) error {
	switch strings.ToLower(mode) {
	case "auto":
		return m.Send("AUTO_MODE")
	case "manual":
		return m.Send("MANUAL_MODE")
	default:
		return errors.Errorf("serial: invalid mode %q", mode)
	}
}

// State returns a copy of the current device snapshot.
func (m *Manager) State() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the port is currently usable.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Connected
}

func (m *Manager) setConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Connected = v
}

// Close releases the port.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port != nil {
		if err := m.port.Close(); err != nil {
			logrus.Errorf("serial: close: %s", err)
		}
		m.port = nil
	}
	m.state.Connected = false
}
