package device

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// lineBufferSize bounds an incoming command line. Bytes past the end are
// silently dropped rather than reported: short commands still parse, and the
// line is discarded whole when what survived is not a known name.
const lineBufferSize = 64

type lineBuffer struct {
	buf [lineBufferSize]byte
	n   int
}

// feed consumes one byte. On a terminator it returns the accumulated line and
// true; a bare terminator on an empty buffer yields nothing.
func (l *lineBuffer) feed(b byte) (string, bool) {
	if b == '\n' || b == '\r' {
		if l.n == 0 {
			return "", false
		}
		line := string(l.buf[:l.n])
		l.n = 0
		return line, true
	}
	if l.n >= lineBufferSize {
		return "", false
	}
	l.buf[l.n] = b
	l.n++
	return "", false
}

// dispatch parses one complete line as NAME or NAME:PARAM and runs it. Names
// are case-insensitive; every non-blank line gets a response of some kind.
func (c *Controller) dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	name, param := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		name, param = line[:i], strings.TrimSpace(line[i+1:])
	}
	name = strings.ToUpper(strings.TrimSpace(name))

	now := time.Now()

	switch name {
	case "AUTO", "AUTO_MODE":
		c.setMode(ModeAuto)
	case "MANUAL", "MANUAL_MODE":
		c.setMode(ModeManual)

	case "OPEN_CURTAIN":
		if !c.requireManual() {
			return
		}
		c.motor.Open(now)
	case "CLOSE_CURTAIN":
		if !c.requireManual() {
			return
		}
		c.motor.Close(now)
	case "STOP_MOTOR":
		// Always honored: this is the only mid-move cancellation path.
		c.motor.Stop()

	case "SET_SPEED":
		v, ok := c.intParam(param, "SPEED")
		if !ok {
			return
		}
		c.motor.SetSpeed(v)

	case "SET_OPEN_THRESHOLD":
		v, ok := c.intParam(param, "THRESHOLD")
		if !ok {
			return
		}
		c.openThreshold = clamp1023(v)
		c.saveThresholds()
		c.emitf("OPEN_THRESHOLD:%d", c.openThreshold)
	case "SET_CLOSE_THRESHOLD":
		v, ok := c.intParam(param, "THRESHOLD")
		if !ok {
			return
		}
		c.closeThreshold = clamp1023(v)
		c.saveThresholds()
		c.emitf("CLOSE_THRESHOLD:%d", c.closeThreshold)

	case "CALIBRATE_LIGHT":
		c.calibrate()
	case "RESET_CALIBRATION":
		c.resetCalibration()
	case "RESET_SETTINGS":
		c.resetSettings()

	case "READ_LIGHT":
		c.emitf("LIGHT:%d", c.filter.Average())
	case "GET_STATUS":
		c.statusReport(now)
	case "PING":
		c.emitf("PONG")
	case "VERSION":
		c.emitf("VERSION:%s", c.cfg.Version)

	case "TEST_MOTOR":
		if !c.requireManual() {
			return
		}
		c.motor.Test()

	default:
		c.emitf("ERROR:UNKNOWN_COMMAND:%s", name)
	}
}

// requireManual gates motor-moving commands. The command has no effect in
// auto mode beyond the error line.
func (c *Controller) requireManual() bool {
	if c.mode != ModeManual {
		c.emitf("ERROR:NOT_IN_MANUAL_MODE")
		return false
	}
	return true
}

// intParam parses a decimal parameter. An absent or unparsable parameter is
// reported the same way; values are never rejected for range, callers clamp.
func (c *Controller) intParam(param, label string) (int, bool) {
	if param == "" {
		c.emitf("ERROR:MISSING_%s_PARAMETER", label)
		return 0, false
	}
	v, err := strconv.Atoi(param)
	if err != nil {
		c.emitf("ERROR:MISSING_%s_PARAMETER", label)
		return 0, false
	}
	return v, true
}

func (c *Controller) saveThresholds() {
	if err := c.thrStore.Save(Record{A: c.openThreshold, B: c.closeThreshold}); err != nil {
		logrus.Errorf("settings: threshold save failed: %s", err)
	}
}
