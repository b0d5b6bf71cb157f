// Package mqtt republishes device events on the message bus and accepts
// control commands from it.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"curtainctl/internal/serialbridge"
)

// Topics is the bus topic layout.
type Topics struct {
	LightReading   string `yaml:"light_reading" default:"curtain/light/reading"`
	PositionStatus string `yaml:"position_status" default:"curtain/position/status"`
	SystemStatus   string `yaml:"system_status" default:"curtain/system/status"`
	ControlCommand string `yaml:"control_command" default:"curtain/control/command"`
	Alerts         string `yaml:"alerts" default:"curtain/alerts/errors"`
	Heartbeat      string `yaml:"heartbeat" default:"curtain/system/heartbeat"`
}

func DefaultTopics() Topics {
	return Topics{
		LightReading:   "curtain/light/reading",
		PositionStatus: "curtain/position/status",
		SystemStatus:   "curtain/system/status",
		ControlCommand: "curtain/control/command",
		Alerts:         "curtain/alerts/errors",
		Heartbeat:      "curtain/system/heartbeat",
	}
}

// Bridge glues the serial device to the MQTT bus.
type Bridge struct {
	mqtt   paho.Client
	device *serialbridge.Manager
	topics Topics
	onCmd  func(cmd string)
}

func NewBridge(client paho.Client, device *serialbridge.Manager, topics Topics) *Bridge {
	b := &Bridge{mqtt: client, device: device, topics: topics}

	device.On("POSITION", func(v string) {
		b.PublishPosition(strings.ToLower(v))
	})
	device.On("ERROR", func(v string) {
		b.PublishError(v, "device")
	})

	return b
}

// OnCommand registers a hook called after a control command is forwarded to
// the device.
func (b *Bridge) OnCommand(h func(cmd string)) {
	b.onCmd = h
}

// Subscribe attaches the control command handler until the context ends.
func (b *Bridge) Subscribe(ctx context.Context) error {
	if token := b.mqtt.Subscribe(b.topics.ControlCommand, 1, b.onCommand); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "mqtt: command topic subscription failed")
	}
	logrus.Infof("mqtt: subscribed to %s", b.topics.ControlCommand)

	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.topics.ControlCommand); token.Wait() && token.Error() != nil {
			logrus.Errorf("mqtt: unsubscribe failed: %s", token.Error())
		}
	}()

	return nil
}

// onCommand accepts either a bare payload ("open") or the JSON form
// {"command":"open"}; the bare form is what Home Assistant sends.
func (b *Bridge) onCommand(_ paho.Client, msg paho.Message) {
	payload := strings.TrimSpace(string(msg.Payload()))

	cmd := payload
	if strings.HasPrefix(payload, "{") {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(msg.Payload(), &body); err != nil {
			logrus.Errorf("mqtt: bad command payload: %s", err)
			return
		}
		cmd = body.Command
	}

	logrus.Infof("mqtt: command %q", cmd)

	var err error
	switch strings.ToLower(cmd) {
	case "open":
		err = b.device.OpenCurtain()
	case "close":
		err = b.device.CloseCurtain()
	case "stop":
		err = b.device.StopMotor()
	case "calibrate":
		err = b.device.Calibrate()
	default:
		logrus.Errorf("mqtt: unsupported command %q", cmd)
		return
	}
	if err != nil {
		logrus.Errorf("mqtt: command %q failed: %s", cmd, err)
		return
	}
	if b.onCmd != nil {
		b.onCmd(strings.ToLower(cmd))
	}
}

// PublishLightReading publishes the latest smoothed reading.
func (b *Bridge) PublishLightReading(value int) {
	b.publishJSON(b.topics.LightReading, 0, false, map[string]interface{}{
		"value":     value,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// PublishPosition publishes a position change, retained so late subscribers
// see the last known state.
func (b *Bridge) PublishPosition(position string) {
	b.publishJSON(b.topics.PositionStatus, 1, true, map[string]interface{}{
		"position":  position,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// PublishSystemStatus publishes the full device snapshot.
func (b *Bridge) PublishSystemStatus(st serialbridge.Snapshot) {
	b.publishJSON(b.topics.SystemStatus, 1, true, st)
}

// PublishHeartbeat signals liveness.
func (b *Bridge) PublishHeartbeat() {
	b.publishJSON(b.topics.Heartbeat, 0, false, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// PublishError raises an alert on the bus.
func (b *Bridge) PublishError(message, errorType string) {
	b.publishJSON(b.topics.Alerts, 1, false, map[string]interface{}{
		"error_type": errorType,
		"message":    message,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func (b *Bridge) publishJSON(topic string, qos byte, retain bool, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		logrus.Errorf("mqtt: marshal for %s: %s", topic, err)
		return
	}
	if token := b.mqtt.Publish(topic, qos, retain, payload); token.Wait() && token.Error() != nil {
		logrus.Errorf("mqtt: publish %s failed: %s", topic, token.Error())
	}
}
