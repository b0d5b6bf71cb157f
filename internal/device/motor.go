package device

import (
	"time"

	"github.com/sirupsen/logrus"
)

type emitFunc func(format string, args ...interface{})

// Motor is the curtain motor state machine. It is the only writer of both the
// drive state and the inferred position, so invalid combinations cannot be
// constructed from outside. A direction reversal always passes through
// Stopped; there is no Opening<->Closing transition.
type Motor struct {
	driver MotorDriver

	state    MotorState
	position Position

	speed     int // percent, scales the direction duty while moving
	openDuty  uint8
	closeDuty uint8

	timeout   time.Duration
	testPulse time.Duration
	startedAt time.Time

	emit emitFunc
}

func NewMotor(driver MotorDriver, cfg Config, emit emitFunc) *Motor {
	return &Motor{
		driver:    driver,
		state:     MotorStopped,
		position:  PositionUnknown,
		speed:     cfg.DefaultSpeed,
		openDuty:  cfg.OpenDuty,
		closeDuty: cfg.CloseDuty,
		timeout:   cfg.MotorTimeout,
		testPulse: cfg.TestPulse,
		emit:      emit,
	}
}

func (m *Motor) State() MotorState { return m.state }

func (m *Motor) Position() Position { return m.position }

func (m *Motor) Speed() int { return m.speed }

// Open starts an opening move. Already open is a no-op with an informational
// response; an active closing move is stopped first.
func (m *Motor) Open(now time.Time) {
	if m.position == PositionOpen {
		m.emit("POSITION:%s", m.position)
		return
	}
	if m.state == MotorOpening {
		m.emit("MOTOR:%s", m.state)
		return
	}
	if m.state == MotorClosing {
		m.Stop()
	}
	m.start(MotorOpening, DirectionOpen, m.openDuty, now)
}

// Close starts a closing move, symmetric to Open.
func (m *Motor) Close(now time.Time) {
	if m.position == PositionClosed {
		m.emit("POSITION:%s", m.position)
		return
	}
	if m.state == MotorClosing {
		m.emit("MOTOR:%s", m.state)
		return
	}
	if m.state == MotorOpening {
		m.Stop()
	}
	m.start(MotorClosing, DirectionClose, m.closeDuty, now)
}

func (m *Motor) start(state MotorState, dir Direction, duty uint8, now time.Time) {
	if err := m.driver.Drive(dir, m.scaled(duty)); err != nil {
		logrus.Errorf("motor: drive %s failed: %s", dir, err)
		m.emit("ERROR:MOTOR_DRIVER")
		return
	}

	m.state = state
	m.startedAt = now
	m.position = PositionPartial

	m.emit("MOTOR:%s", m.state)
	m.emit("POSITION:%s", m.position)
}

// Stop ends the active move. The drive output is zeroed before anything else,
// then the position is resolved from the state being left: an opening move
// resolves to Open, a closing move to Closed, no matter why it stopped.
func (m *Motor) Stop() {
	if m.state == MotorStopped {
		m.emit("MOTOR:%s", m.state)
		return
	}

	prev := m.state
	if err := m.driver.Stop(); err != nil {
		logrus.Errorf("motor: stop failed: %s", err)
	}
	m.state = MotorStopped

	if prev == MotorOpening {
		m.position = PositionOpen
	} else {
		m.position = PositionClosed
	}

	m.emit("MOTOR:%s", m.state)
	m.emit("POSITION:%s", m.position)
}

// CheckTimeout enforces the safety ceiling. This is the one state transition
// not driven by a command.
func (m *Motor) CheckTimeout(now time.Time) {
	if m.state == MotorStopped {
		return
	}
	if now.Sub(m.startedAt) >= m.timeout {
		logrus.Warnf("motor: %s exceeded %s ceiling, forcing stop", m.state, m.timeout)
		m.Stop()
		m.emit("ERROR:MOTOR_TIMEOUT")
	}
}

// SetSpeed rescales the active drive while moving. While stopped it is a
// no-op acknowledged with a status event: there is no queued speed waiting
// for the next move.
func (m *Motor) SetSpeed(percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	if m.state == MotorStopped {
		m.emit("MOTOR:%s", m.state)
		return
	}

	m.speed = percent

	duty := m.openDuty
	dir := DirectionOpen
	if m.state == MotorClosing {
		duty = m.closeDuty
		dir = DirectionClose
	}
	if err := m.driver.Drive(dir, m.scaled(duty)); err != nil {
		logrus.Errorf("motor: reapply drive failed: %s", err)
		m.emit("ERROR:MOTOR_DRIVER")
		return
	}

	m.emit("SPEED:%d", m.speed)
}

// Test runs the diagnostic sweep: a short pulse in each direction with a stop
// between. It deliberately blocks the control loop for the two pulses and
// leaves the position unknown, since the sweep moves the curtain without
// completing a tracked move.
func (m *Motor) Test() {
	if m.state != MotorStopped {
		m.emit("ERROR:MOTOR_BUSY")
		return
	}

	m.emit("TEST:START")
	for _, dir := range []Direction{DirectionOpen, DirectionClose} {
		duty := m.openDuty
		if dir == DirectionClose {
			duty = m.closeDuty
		}
		if err := m.driver.Drive(dir, m.scaled(duty)); err != nil {
			logrus.Errorf("motor: test drive %s failed: %s", dir, err)
			m.emit("ERROR:MOTOR_DRIVER")
			return
		}
		time.Sleep(m.testPulse)
		if err := m.driver.Stop(); err != nil {
			logrus.Errorf("motor: test stop failed: %s", err)
		}
	}

	m.position = PositionUnknown
	m.emit("POSITION:%s", m.position)
	m.emit("TEST:OK")
}

func (m *Motor) scaled(duty uint8) uint8 {
	return uint8(int(duty) * m.speed / 100)
}
