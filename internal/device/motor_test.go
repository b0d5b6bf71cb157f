package device

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type eventLog struct {
	lines []string
}

func (l *eventLog) emit(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *eventLog) reset() { l.lines = nil }

func newTestMotor(drv MotorDriver) (*Motor, *eventLog) {
	cfg := DefaultConfig()
	cfg.MotorTimeout = 5 * time.Millisecond
	cfg.TestPulse = time.Millisecond
	log := &eventLog{}
	return NewMotor(drv, cfg, log.emit), log
}

func TestMotorOpenStopResolvesPosition(t *testing.T) {
	drv := &SimMotor{}
	m, log := newTestMotor(drv)

	m.Open(time.Now())
	assert.Equal(t, MotorOpening, m.State())
	assert.Equal(t, PositionPartial, m.Position())
	assert.True(t, drv.Running)
	assert.Equal(t, []string{"MOTOR:OPENING", "POSITION:PARTIAL"}, log.lines)

	log.reset()
	m.Stop()
	assert.Equal(t, MotorStopped, m.State())
	assert.Equal(t, PositionOpen, m.Position(), "stop resolves from the state being left")
	assert.False(t, drv.Running)
	assert.Equal(t, []string{"MOTOR:STOPPED", "POSITION:OPEN"}, log.lines)
}

func TestMotorNoOpWhenAlreadyAtPosition(t *testing.T) {
	drv := &SimMotor{}
	m, log := newTestMotor(drv)

	m.Open(time.Now())
	m.Stop()
	log.reset()

	m.Open(time.Now())
	assert.Equal(t, MotorStopped, m.State(), "already open, nothing starts")
	assert.False(t, drv.Running)
	assert.Equal(t, []string{"POSITION:OPEN"}, log.lines)
}

func TestMotorReversalPassesThroughStopped(t *testing.T) {
	drv := &SimMotor{}
	m, log := newTestMotor(drv)

	m.Open(time.Now())
	log.reset()

	m.Close(time.Now())
	assert.Equal(t, MotorClosing, m.State())
	assert.Equal(t, []string{
		"MOTOR:STOPPED", "POSITION:OPEN", // the intervening stop
		"MOTOR:CLOSING", "POSITION:PARTIAL",
	}, log.lines)
}

func TestMotorTimeoutForcesStop(t *testing.T) {
	for _, start := range []struct {
		name string
		move func(*Motor, time.Time)
		pos  Position
	}{
		{"opening", (*Motor).Open, PositionOpen},
		{"closing", (*Motor).Close, PositionClosed},
	} {
		t.Run(start.name, func(t *testing.T) {
			drv := &SimMotor{}
			m, log := newTestMotor(drv)

			began := time.Now()
			start.move(m, began)
			log.reset()

			m.CheckTimeout(began.Add(time.Millisecond))
			assert.NotEqual(t, MotorStopped, m.State(), "before the ceiling nothing happens")

			m.CheckTimeout(began.Add(10 * time.Millisecond))
			assert.Equal(t, MotorStopped, m.State())
			assert.Equal(t, start.pos, m.Position())
			assert.False(t, drv.Running)
			assert.Contains(t, log.lines, "ERROR:MOTOR_TIMEOUT")
		})
	}
}

func TestMotorSetSpeed(t *testing.T) {
	t.Run("ignored while stopped", func(t *testing.T) {
		drv := &SimMotor{}
		m, log := newTestMotor(drv)

		m.SetSpeed(40)
		assert.Equal(t, []string{"MOTOR:STOPPED"}, log.lines)
		assert.Equal(t, 100, m.Speed(), "no queued speed for the next move")
	})

	t.Run("rescales active drive", func(t *testing.T) {
		drv := &SimMotor{}
		m, log := newTestMotor(drv)

		m.Open(time.Now())
		assert.Equal(t, uint8(200), drv.Duty)
		log.reset()

		m.SetSpeed(50)
		assert.Equal(t, uint8(100), drv.Duty)
		assert.Equal(t, []string{"SPEED:50"}, log.lines)
	})

	t.Run("clamps percent", func(t *testing.T) {
		drv := &SimMotor{}
		m, _ := newTestMotor(drv)

		m.Open(time.Now())
		m.SetSpeed(500)
		assert.Equal(t, 100, m.Speed())
	})
}

func TestMotorTestSweep(t *testing.T) {
	drv := &SimMotor{}
	m, log := newTestMotor(drv)

	m.Test()
	assert.False(t, drv.Running)
	assert.Equal(t, PositionUnknown, m.Position())
	assert.Equal(t, []string{"TEST:START", "POSITION:UNKNOWN", "TEST:OK"}, log.lines)

	t.Run("rejected while moving", func(t *testing.T) {
		m.Open(time.Now())
		log.reset()
		m.Test()
		assert.Equal(t, []string{"ERROR:MOTOR_BUSY"}, log.lines)
	})
}
