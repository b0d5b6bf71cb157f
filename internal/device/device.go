package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Config carries every tunable of the control loop. Durations are fields so
// tests can run the same code paths at millisecond scale.
type Config struct {
	WindowSize     int
	SampleInterval time.Duration
	StatusInterval time.Duration
	LoopInterval   time.Duration

	MotorTimeout time.Duration
	TestPulse    time.Duration
	OpenDuty     uint8
	CloseDuty    uint8
	DefaultSpeed int

	CalibrationDuration    time.Duration
	CalibrationSampleDelay time.Duration
	CalibrationMargin      int

	DefaultCalMin          uint16
	DefaultCalMax          uint16
	DefaultOpenThreshold   uint16
	DefaultCloseThreshold  uint16

	Version string
	Banner  string
}

func DefaultConfig() Config {
	return Config{
		WindowSize:     10,
		SampleInterval: 300 * time.Millisecond,
		StatusInterval: 10 * time.Second,
		LoopInterval:   10 * time.Millisecond,

		MotorTimeout: 30 * time.Second,
		TestPulse:    500 * time.Millisecond,
		OpenDuty:     200,
		CloseDuty:    180,
		DefaultSpeed: 100,

		CalibrationDuration:    10 * time.Second,
		CalibrationSampleDelay: 100 * time.Millisecond,
		CalibrationMargin:      10,

		DefaultCalMin:         50,
		DefaultCalMax:         950,
		DefaultOpenThreshold:  300,
		DefaultCloseThreshold: 700,

		Version: "2.0.0",
		Banner:  "CURTAIN_CONTROLLER",
	}
}

// Controller owns every piece of device state and runs the cooperative
// control loop. It is single-threaded: one Tick drains the input bytes that
// are already available, takes at most one sample and at most one status
// report, then returns. Nothing here needs a lock.
type Controller struct {
	cfg Config

	in  <-chan byte
	out io.Writer

	sensor LightSensor
	filter *Filter
	motor  *Motor

	calStore *Store
	thrStore *Store

	mode           Mode
	cal            Calibration
	openThreshold  uint16
	closeThreshold uint16

	line lineBuffer

	bootTime   time.Time
	lastSample time.Time
	lastStatus time.Time
}

// New wires a controller from its collaborators. The input channel is fed by
// the transport; the controller never blocks on it.
func New(cfg Config, sensor LightSensor, driver MotorDriver, nvm NVM, in <-chan byte, out io.Writer) *Controller {
	c := &Controller{
		cfg:            cfg,
		in:             in,
		out:            out,
		sensor:         sensor,
		filter:         NewFilter(cfg.WindowSize),
		calStore:       NewStore(nvm, calibrationBase),
		thrStore:       NewStore(nvm, thresholdsBase),
		mode:           ModeManual,
		cal:            Calibration{Min: cfg.DefaultCalMin, Max: cfg.DefaultCalMax},
		openThreshold:  cfg.DefaultOpenThreshold,
		closeThreshold: cfg.DefaultCloseThreshold,
	}
	c.motor = NewMotor(driver, cfg, c.emitf)
	return c
}

// Boot loads persisted settings, falls back to defaults on a miss, and
// announces the device identity on the serial link.
func (c *Controller) Boot(now time.Time) {
	c.bootTime = now
	c.lastSample = now
	c.lastStatus = now

	c.emitf("READY:%s", c.cfg.Banner)
	c.emitf("VERSION:%s", c.cfg.Version)

	if rec, ok, err := c.calStore.Load(); err != nil {
		logrus.Errorf("boot: calibration load: %s", err)
	} else if ok {
		c.cal = Calibration{Min: rec.A, Max: rec.B, Valid: true}
	}
	c.emitCalibration()

	if rec, ok, err := c.thrStore.Load(); err != nil {
		logrus.Errorf("boot: thresholds load: %s", err)
	} else if ok {
		c.openThreshold = clamp1023(int(rec.A))
		c.closeThreshold = clamp1023(int(rec.B))
	} else {
		c.emitf("SETTINGS:NOT_FOUND_USING_DEFAULTS")
	}

	c.emitf("MODE:%s", c.mode)

	logrus.Infof("device: booted, mode %s, thresholds %d/%d", c.mode, c.openThreshold, c.closeThreshold)
}

// Run ticks the control loop until the context ends. The motor is stopped on
// the way out so a shutdown never leaves the drive energized. A context end
// is the normal way to stop the loop and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.motor.State() != MotorStopped {
				c.motor.Stop()
			}
			return nil
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Tick is one control loop iteration: drain input, sample if due, enforce the
// motor ceiling, report if due. Every step is non-blocking except the
// calibration routine a drained command may start.
func (c *Controller) Tick(now time.Time) {
	c.drainInput()

	if now.Sub(c.lastSample) >= c.cfg.SampleInterval {
		c.lastSample = now
		c.sampleTick(now)
	}

	c.motor.CheckTimeout(now)

	if now.Sub(c.lastStatus) >= c.cfg.StatusInterval {
		c.lastStatus = now
		c.statusReport(now)
	}
}

func (c *Controller) drainInput() {
	for {
		select {
		case b, ok := <-c.in:
			if !ok {
				return
			}
			if line, complete := c.line.feed(b); complete {
				c.dispatch(line)
			}
		default:
			return
		}
	}
}

func (c *Controller) sampleTick(now time.Time) {
	raw, err := c.sensor.Read()
	if err != nil {
		logrus.Errorf("sensor: read failed: %s", err)
		return
	}

	avg := c.filter.Sample(raw)
	c.emitf("LIGHT:%d", avg)

	if c.mode != ModeAuto || c.motor.State() != MotorStopped {
		return
	}
	if avg < int(c.openThreshold) && c.motor.Position() != PositionOpen {
		logrus.Infof("auto: light %d below %d, opening", avg, c.openThreshold)
		c.motor.Open(now)
	} else if avg > int(c.closeThreshold) && c.motor.Position() != PositionClosed {
		logrus.Infof("auto: light %d above %d, closing", avg, c.closeThreshold)
		c.motor.Close(now)
	}
}

func (c *Controller) statusReport(now time.Time) {
	c.emitf("STATUS:REPORT_START")
	c.emitf("MODE:%s", c.mode)
	c.emitf("MOTOR:%s", c.motor.State())
	c.emitf("POSITION:%s", c.motor.Position())
	c.emitf("LIGHT:%d", c.filter.Average())
	c.emitf("PERCENT:%d", Percent(c.filter.Average(), c.cal))
	c.emitf("SPEED:%d", c.motor.Speed())
	c.emitf("OPEN_THRESHOLD:%d", c.openThreshold)
	c.emitf("CLOSE_THRESHOLD:%d", c.closeThreshold)
	c.emitCalibration()
	c.emitf("UPTIME:%d", now.Sub(c.bootTime).Milliseconds())
	c.emitf("STATUS:REPORT_END")
}

// calibrate samples extremes for a fixed window. This is the one deliberately
// blocking operation: while it runs no input is drained and the motor ceiling
// is not enforced, so a move started just before continues past its timeout
// until the window ends.
func (c *Controller) calibrate() {
	logrus.Infof("calibration: sampling for %s", c.cfg.CalibrationDuration)
	c.emitf("CALIBRATION:START")

	min, max := 1023, 0
	deadline := time.Now().Add(c.cfg.CalibrationDuration)
	for time.Now().Before(deadline) {
		if raw, err := c.sensor.Read(); err == nil {
			if raw < min {
				min = raw
			}
			if raw > max {
				max = raw
			}
		}
		time.Sleep(c.cfg.CalibrationSampleDelay)
	}

	min -= c.cfg.CalibrationMargin
	max += c.cfg.CalibrationMargin
	if min < 0 {
		min = 0
	}
	if max > 1023 {
		max = 1023
	}

	c.cal = Calibration{Min: uint16(min), Max: uint16(max), Valid: true}
	if err := c.calStore.Save(Record{A: c.cal.Min, B: c.cal.Max}); err != nil {
		logrus.Errorf("calibration: save failed: %s", err)
	}

	c.emitCalibration()
}

func (c *Controller) resetCalibration() {
	if err := c.calStore.Reset(); err != nil {
		logrus.Errorf("calibration: reset failed: %s", err)
	}
	c.cal = Calibration{Min: c.cfg.DefaultCalMin, Max: c.cfg.DefaultCalMax}
	c.emitCalibration()
}

func (c *Controller) resetSettings() {
	c.resetCalibration()

	if err := c.thrStore.Reset(); err != nil {
		logrus.Errorf("settings: reset failed: %s", err)
	}
	c.openThreshold = c.cfg.DefaultOpenThreshold
	c.closeThreshold = c.cfg.DefaultCloseThreshold
	c.motor.speed = c.cfg.DefaultSpeed

	c.emitf("OPEN_THRESHOLD:%d", c.openThreshold)
	c.emitf("CLOSE_THRESHOLD:%d", c.closeThreshold)
	c.emitf("SETTINGS:RESET")
}

func (c *Controller) setMode(m Mode) {
	c.mode = m
	c.emitf("MODE:%s", c.mode)
	logrus.Infof("device: mode %s", c.mode)
}

func (c *Controller) emitCalibration() {
	flag := "NO"
	if c.cal.Valid {
		flag = "YES"
	}
	c.emitf("CALIBRATION:%s,MIN:%d,MAX:%d", flag, c.cal.Min, c.cal.Max)
}

func (c *Controller) emitf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(c.out, line+"\r\n"); err != nil {
		logrus.Errorf("serial: write failed: %s", err)
	}
	logrus.Debugf("device: >> %s", line)
}

func clamp1023(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 1023 {
		return 1023
	}
	return uint16(v)
}
