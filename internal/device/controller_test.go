package device

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testDevice struct {
	ctrl   *Controller
	in     chan byte
	out    *bytes.Buffer
	motor  *SimMotor
	sensor *SimSensor
	nvm    *MemNVM
}

func newTestDevice(cfg Config) *testDevice {
	d := &testDevice{
		in:     make(chan byte, 256),
		out:    &bytes.Buffer{},
		motor:  &SimMotor{},
		sensor: &SimSensor{Value: 500},
		nvm:    NewMemNVM(),
	}
	d.ctrl = New(cfg, d.sensor, d.motor, d.nvm, d.in, d.out)
	return d
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = time.Hour
	cfg.StatusInterval = time.Hour
	cfg.MotorTimeout = 5 * time.Millisecond
	cfg.TestPulse = time.Millisecond
	cfg.CalibrationDuration = 20 * time.Millisecond
	cfg.CalibrationSampleDelay = time.Millisecond
	return cfg
}

// send feeds one command line and runs a tick to drain it.
func (d *testDevice) send(t *testing.T, line string) []string {
	t.Helper()
	d.out.Reset()
	for _, b := range []byte(line + "\n") {
		d.in <- b
	}
	d.ctrl.Tick(time.Now())
	return d.lines()
}

func (d *testDevice) lines() []string {
	raw := strings.Split(d.out.String(), "\r\n")
	out := raw[:0]
	for _, l := range raw {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestBootWithEmptyNVMAnnouncesDefaults(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.ctrl.Boot(time.Now())

	lines := d.lines()
	assert.Contains(t, lines, "READY:CURTAIN_CONTROLLER")
	assert.Contains(t, lines, "VERSION:2.0.0")
	assert.Contains(t, lines, "CALIBRATION:NO,MIN:50,MAX:950")
	assert.Contains(t, lines, "SETTINGS:NOT_FOUND_USING_DEFAULTS")
	assert.Contains(t, lines, "MODE:MANUAL")
}

func TestScenarioManualMoveTimeoutAndGarbage(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.ctrl.Boot(time.Now())

	lines := d.send(t, "OPEN_CURTAIN")
	assert.Equal(t, []string{"MOTOR:OPENING", "POSITION:PARTIAL"}, lines)

	// no stop arrives; the ceiling fires on a later tick
	time.Sleep(10 * time.Millisecond)
	d.out.Reset()
	d.ctrl.Tick(time.Now())
	assert.Equal(t, []string{"MOTOR:STOPPED", "POSITION:OPEN", "ERROR:MOTOR_TIMEOUT"}, d.lines())

	lines = d.send(t, "SET_OPEN_THRESHOLD:2000")
	assert.Equal(t, []string{"OPEN_THRESHOLD:1023"}, lines, "out-of-range clamps, never rejects")

	lines = d.send(t, "GARBAGE_CMD")
	assert.Equal(t, []string{"ERROR:UNKNOWN_COMMAND:GARBAGE_CMD"}, lines)
	assert.Equal(t, MotorStopped, d.ctrl.motor.State())
	assert.Equal(t, PositionOpen, d.ctrl.motor.Position())
}

func TestModeGateBlocksMotorCommands(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.ctrl.Boot(time.Now())

	assert.Equal(t, []string{"MODE:AUTO"}, d.send(t, "AUTO"))

	lines := d.send(t, "OPEN_CURTAIN")
	assert.Equal(t, []string{"ERROR:NOT_IN_MANUAL_MODE"}, lines)
	assert.Equal(t, MotorStopped, d.ctrl.motor.State(), "gated command has no side effect")

	// STOP_MOTOR is the cancellation path and is never gated
	lines = d.send(t, "STOP_MOTOR")
	assert.Equal(t, []string{"MOTOR:STOPPED"}, lines)

	assert.Equal(t, []string{"MODE:MANUAL"}, d.send(t, "MANUAL_MODE"))
}

func TestCommandParsing(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.ctrl.Boot(time.Now())

	t.Run("case insensitive with whitespace", func(t *testing.T) {
		assert.Equal(t, []string{"PONG"}, d.send(t, "  ping  "))
	})

	t.Run("missing parameter", func(t *testing.T) {
		assert.Equal(t, []string{"ERROR:MISSING_SPEED_PARAMETER"}, d.send(t, "SET_SPEED"))
		assert.Equal(t, []string{"ERROR:MISSING_THRESHOLD_PARAMETER"}, d.send(t, "SET_CLOSE_THRESHOLD:abc"))
	})

	t.Run("blank line produces nothing", func(t *testing.T) {
		assert.Empty(t, d.send(t, "   "))
	})

	t.Run("overflow drops silently but still answers once", func(t *testing.T) {
		lines := d.send(t, strings.Repeat("X", 200))
		assert.Equal(t, []string{"ERROR:UNKNOWN_COMMAND:" + strings.Repeat("X", lineBufferSize)}, lines)
	})

	t.Run("version query", func(t *testing.T) {
		assert.Equal(t, []string{"VERSION:2.0.0"}, d.send(t, "version"))
	})
}

func TestSamplingTickEmitsLight(t *testing.T) {
	cfg := quietConfig()
	cfg.SampleInterval = time.Millisecond
	cfg.WindowSize = 1
	d := newTestDevice(cfg)
	d.sensor.Value = 321
	d.ctrl.Boot(time.Now())

	d.out.Reset()
	d.ctrl.Tick(time.Now().Add(5 * time.Millisecond))
	assert.Equal(t, []string{"LIGHT:321"}, d.lines())
}

func TestAutoModeFollowsThresholds(t *testing.T) {
	cfg := quietConfig()
	cfg.SampleInterval = time.Millisecond
	cfg.WindowSize = 1
	cfg.MotorTimeout = time.Hour
	d := newTestDevice(cfg)
	d.ctrl.Boot(time.Now())
	d.send(t, "AUTO")

	now := time.Now()

	// dark: below the open threshold
	d.sensor.Value = 100
	d.out.Reset()
	d.ctrl.Tick(now.Add(5 * time.Millisecond))
	assert.Equal(t, []string{"LIGHT:100", "MOTOR:OPENING", "POSITION:PARTIAL"}, d.lines())

	// still dark while moving: no repeated start
	d.out.Reset()
	d.ctrl.Tick(now.Add(10 * time.Millisecond))
	assert.Equal(t, []string{"LIGHT:100"}, d.lines())

	d.ctrl.motor.Stop()
	assert.Equal(t, PositionOpen, d.ctrl.motor.Position())

	// bright: above the close threshold
	d.sensor.Value = 800
	d.out.Reset()
	d.ctrl.Tick(now.Add(15 * time.Millisecond))
	assert.Equal(t, []string{"LIGHT:800", "MOTOR:CLOSING", "POSITION:PARTIAL"}, d.lines())
}

func TestCalibrationSavesAndSurvivesReboot(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.sensor.Values = []int{200, 600, 400}
	d.ctrl.Boot(time.Now())

	lines := d.send(t, "CALIBRATE_LIGHT")
	assert.Equal(t, "CALIBRATION:START", lines[0])
	assert.Equal(t, "CALIBRATION:YES,MIN:190,MAX:610", lines[len(lines)-1], "10-unit margin on each side")

	// same NVM, fresh controller: the record survives the power cycle
	reboot := New(quietConfig(), d.sensor, d.motor, d.nvm, d.in, d.out)
	d.out.Reset()
	reboot.Boot(time.Now())
	assert.Contains(t, d.lines(), "CALIBRATION:YES,MIN:190,MAX:610")
}

func TestResetSettingsRestoresDefaultsAfterReboot(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.ctrl.Boot(time.Now())

	d.send(t, "SET_OPEN_THRESHOLD:111")
	d.send(t, "SET_CLOSE_THRESHOLD:999")

	// thresholds persisted: a reboot loads them back
	reboot := New(quietConfig(), d.sensor, d.motor, d.nvm, d.in, d.out)
	reboot.Boot(time.Now())
	assert.Equal(t, uint16(111), reboot.openThreshold)
	assert.Equal(t, uint16(999), reboot.closeThreshold)

	lines := d.send(t, "RESET_SETTINGS")
	assert.Contains(t, lines, "CALIBRATION:NO,MIN:50,MAX:950")
	assert.Contains(t, lines, "SETTINGS:RESET")

	reboot = New(quietConfig(), d.sensor, d.motor, d.nvm, d.in, d.out)
	d.out.Reset()
	reboot.Boot(time.Now())
	assert.Contains(t, d.lines(), "SETTINGS:NOT_FOUND_USING_DEFAULTS")
	assert.Equal(t, uint16(300), reboot.openThreshold)
	assert.Equal(t, uint16(700), reboot.closeThreshold)
}

func TestStatusReportBlock(t *testing.T) {
	d := newTestDevice(quietConfig())
	d.ctrl.Boot(time.Now())

	lines := d.send(t, "GET_STATUS")
	assert.Equal(t, "STATUS:REPORT_START", lines[0])
	assert.Equal(t, "STATUS:REPORT_END", lines[len(lines)-1])
	assert.Contains(t, lines, "MODE:MANUAL")
	assert.Contains(t, lines, "MOTOR:STOPPED")
	assert.Contains(t, lines, "POSITION:UNKNOWN")
	assert.Contains(t, lines, "OPEN_THRESHOLD:300")
	assert.Contains(t, lines, "CLOSE_THRESHOLD:700")
	assert.Contains(t, lines, "SPEED:100")
}

func TestRunShutdownIsCleanAndStopsMotor(t *testing.T) {
	cfg := quietConfig()
	cfg.MotorTimeout = time.Hour
	d := newTestDevice(cfg)
	d.ctrl.Boot(time.Now())

	d.send(t, "OPEN_CURTAIN")
	assert.True(t, d.motor.Running)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, d.ctrl.Run(ctx))
	assert.False(t, d.motor.Running, "shutdown must de-energize the drive")
}
