package driver

import (
	"github.com/racerxdl/go-mcp23017"
	"github.com/pkg/errors"

	"curtainctl/internal/device"
)

// SetPin is a single output pin that can be driven high or low.
type SetPin interface {
	High() error
	Low() error
}

// Mcp23017Pin is one output pin on an MCP23017 I2C expander.
type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(dev *mcp23017.Device, pin uint8) (*Mcp23017Pin, error) {
	p := &Mcp23017Pin{device: dev, pin: pin}
	if err := dev.PinMode(pin, mcp23017.OUTPUT); err != nil {
		return nil, errors.Wrapf(err, "mcp23017: pin %d mode", pin)
	}
	return p, nil
}

func (p *Mcp23017Pin) High() error {
	return p.device.DigitalWrite(p.pin, mcp23017.HIGH)
}

func (p *Mcp23017Pin) Low() error {
	return p.device.DigitalWrite(p.pin, mcp23017.LOW)
}

// RelayMotor drives the curtain with a pair of relays, one per direction.
// Relays are on/off, so the duty value is ignored: the motor runs at line
// speed whenever a relay is energized. Both relays are released before one
// is picked so the pair can never fight each other.
type RelayMotor struct {
	open         SetPin
	close        SetPin
	normalClosed bool
}

func NewRelayMotor(open, close SetPin, normalClosed bool) *RelayMotor {
	return &RelayMotor{open: open, close: close, normalClosed: normalClosed}
}

func (m *RelayMotor) Drive(dir device.Direction, _ uint8) error {
	if err := m.Stop(); err != nil {
		return err
	}

	pin := m.open
	if dir == device.DirectionClose {
		pin = m.close
	}
	return errors.Wrapf(m.set(pin, true), "relay: energize %s", dir)
}

func (m *RelayMotor) Stop() error {
	if err := m.set(m.open, false); err != nil {
		return errors.Wrap(err, "relay: release open")
	}
	if err := m.set(m.close, false); err != nil {
		return errors.Wrap(err, "relay: release close")
	}
	return nil
}

func (m *RelayMotor) set(pin SetPin, energized bool) error {
	if energized != m.normalClosed {
		return pin.High()
	}
	return pin.Low()
}
