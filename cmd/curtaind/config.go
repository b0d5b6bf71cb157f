package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
	"go.bug.st/serial"
	"gopkg.in/yaml.v2"

	"curtainctl/internal/device"
	"curtainctl/internal/device/driver"
)

type cfgSerial struct {
	Port string `yaml:"port" env:"PORT"`
	Baud int    `yaml:"baud" default:"115200" env:"BAUD"`
}

type cfgPWMMotor struct {
	EnablePin  int `yaml:"enable_pin" default:"18"`
	ForwardPin int `yaml:"forward_pin" default:"23"`
	ReversePin int `yaml:"reverse_pin" default:"24"`
}

type cfgMcp23017Pin struct {
	Pin      uint8 `yaml:"pin"`
	Mcp23017 int   `yaml:"mcp23017"`
}

type cfgRelayMotor struct {
	Open         cfgMcp23017Pin `yaml:"open"`
	Close        cfgMcp23017Pin `yaml:"close"`
	NormalClosed bool           `yaml:"normal_closed"`
}

type cfgMotor struct {
	Kind string `yaml:"kind" default:"sim"`

	PWM   cfgPWMMotor   `yaml:"pwm"`
	Relay cfgRelayMotor `yaml:"relay"`
}

type cfgSensor struct {
	Kind string `yaml:"kind" default:"sim"`

	Channel  uint8 `yaml:"channel" default:"0"`
	SimValue int   `yaml:"sim_value" default:"500"`
}

type cfgDrivers struct {
	Mcp23017 map[int]struct {
		Bus          uint8 `yaml:"bus" default:"1"`
		DeviceNumber uint8 `yaml:"device_number" default:"0"`
	} `yaml:"mcp23017"`
}

type cfgTiming struct {
	SampleInterval time.Duration `yaml:"sample_interval" default:"300ms"`
	StatusInterval time.Duration `yaml:"status_interval" default:"10s"`
	MotorTimeout   time.Duration `yaml:"motor_timeout" default:"30s"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	Serial cfgSerial `yaml:"serial" env:"SERIAL"`

	Motor   cfgMotor   `yaml:"motor"`
	Sensor  cfgSensor  `yaml:"sensor"`
	Drivers cfgDrivers `yaml:"drivers"`

	NVMPath string `yaml:"nvm_path" default:"curtaind.nvm" env:"NVM_PATH"`

	Timing cfgTiming `yaml:"timing"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "CURTAIND",
})

func loadConfigFromYamlFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		logrus.Error(err)
		return
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		logrus.Fatal(err)
	}
}

func deviceConfigFromConfig() device.Config {
	cfg := device.DefaultConfig()
	cfg.SampleInterval = Cfg.Timing.SampleInterval
	cfg.StatusInterval = Cfg.Timing.StatusInterval
	cfg.MotorTimeout = Cfg.Timing.MotorTimeout
	return cfg
}

// needsGPIO reports whether any configured peripheral sits on the Pi's
// GPIO header and therefore needs rpio.Open first.
func needsGPIO() bool {
	return Cfg.Motor.Kind == "pwm" || Cfg.Sensor.Kind == "mcp3008"
}

func motorFromConfig(ctx context.Context) device.MotorDriver {
	switch Cfg.Motor.Kind {
	case "pwm":
		return driver.NewPWMMotor(Cfg.Motor.PWM.EnablePin, Cfg.Motor.PWM.ForwardPin, Cfg.Motor.PWM.ReversePin)
	case "relay":
		openPin := mcp23017PinFromConfig(ctx, Cfg.Motor.Relay.Open)
		closePin := mcp23017PinFromConfig(ctx, Cfg.Motor.Relay.Close)
		return driver.NewRelayMotor(openPin, closePin, Cfg.Motor.Relay.NormalClosed)
	case "sim":
		return &device.SimMotor{}
	}

	logrus.Fatalf("%s is not supported motor kind", Cfg.Motor.Kind)
	return nil
}

func sensorFromConfig() device.LightSensor {
	switch Cfg.Sensor.Kind {
	case "mcp3008":
		s, err := driver.NewMCP3008(Cfg.Sensor.Channel)
		if err != nil {
			logrus.Fatal(err)
		}
		return s
	case "sim":
		return &device.SimSensor{Value: Cfg.Sensor.SimValue}
	}

	logrus.Fatalf("%s is not supported sensor kind", Cfg.Sensor.Kind)
	return nil
}

func nvmFromConfig() device.NVM {
	nvm, err := driver.OpenFileNVM(Cfg.NVMPath, 1024)
	if err != nil {
		logrus.Fatal(err)
	}
	return nvm
}

// transportFromConfig opens the command stream. With no port configured the
// daemon talks over stdin/stdout, which is handy for poking at it manually.
func transportFromConfig() (io.Reader, io.Writer) {
	if Cfg.Serial.Port == "" {
		logrus.Info("no serial port configured, using stdio")
		return os.Stdin, os.Stdout
	}

	port, err := serial.Open(Cfg.Serial.Port, &serial.Mode{BaudRate: Cfg.Serial.Baud})
	if err != nil {
		logrus.Fatal(err)
	}
	return port, port
}

func openGPIO() {
	if !needsGPIO() {
		return
	}
	if err := rpio.Open(); err != nil {
		logrus.Fatal(err)
	}
}

var mcpDevices = map[int]*mcp23017.Device{}

func mcp23017PinFromConfig(ctx context.Context, cfg cfgMcp23017Pin) driver.SetPin {
	dev := mcp23017DeviceFromConfigByID(ctx, cfg.Mcp23017)

	p, err := driver.NewMcp23017Pin(dev, cfg.Pin)
	if err != nil {
		logrus.Fatal(err)
	}
	return p
}

func mcp23017DeviceFromConfigByID(ctx context.Context, id int) *mcp23017.Device {
	if Cfg.Drivers.Mcp23017 == nil {
		logrus.Fatal("drivers.mcp23017 not defined")
	}

	cfg, found := Cfg.Drivers.Mcp23017[id]
	if !found {
		logrus.Fatalf("%d is not valid defined drivers.mcp23017", id)
		return nil
	}

	dev := mcpDevices[id]
	if dev == nil {
		var err error
		dev, err = mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
		if err != nil {
			logrus.Fatal(err)
		}
		go func() {
			<-ctx.Done()
			if err := dev.Close(); err != nil {
				logrus.Errorf("mcp23017: close failed %s", err)
				return
			}

			logrus.Infof("mcp23017: close")
		}()
		if err := dev.Reset(); err != nil {
			logrus.Fatal(err)
		}

		mcpDevices[id] = dev
	}

	return dev
}
