// Package driver holds the hardware bindings for the curtain controller:
// motor drivers, the LDR ADC and the non-volatile settings file. Everything
// here implements the small interfaces declared by internal/device.
package driver

import (
	rpio "github.com/stianeikeland/go-rpio/v4"

	"curtainctl/internal/device"
)

const pwmCycle = 255

// PWMMotor drives an H-bridge: one hardware PWM enable pin plus two
// direction pins. The caller is responsible for rpio.Open.
type PWMMotor struct {
	enable  rpio.Pin
	forward rpio.Pin
	reverse rpio.Pin
}

func NewPWMMotor(enablePin, forwardPin, reversePin int) *PWMMotor {
	m := &PWMMotor{
		enable:  rpio.Pin(enablePin),
		forward: rpio.Pin(forwardPin),
		reverse: rpio.Pin(reversePin),
	}

	m.enable.Mode(rpio.Pwm)
	m.enable.Freq(19200 * pwmCycle)
	m.enable.DutyCycle(0, pwmCycle)

	m.forward.Output()
	m.reverse.Output()
	m.forward.Low()
	m.reverse.Low()

	return m
}

func (m *PWMMotor) Drive(dir device.Direction, duty uint8) error {
	// never let both direction pins be high, even transiently
	m.forward.Low()
	m.reverse.Low()

	if dir == device.DirectionOpen {
		m.forward.High()
	} else {
		m.reverse.High()
	}
	m.enable.DutyCycle(uint32(duty), pwmCycle)

	return nil
}

func (m *PWMMotor) Stop() error {
	m.enable.DutyCycle(0, pwmCycle)
	m.forward.Low()
	m.reverse.Low()
	return nil
}
