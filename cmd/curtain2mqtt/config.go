package main

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"curtainctl/internal/mqtt"
)

type cfgSerial struct {
	Port string `yaml:"port" default:"/dev/ttyUSB0" env:"PORT"`
	Baud int    `yaml:"baud" default:"115200" env:"BAUD"`
}

type cfgMQTT struct {
	ClientID string `yaml:"client_id" default:"curtain2mqtt" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`

	Topics mqtt.Topics `yaml:"topics"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
	Name        string `yaml:"name" default:"Curtain" env:"NAME"`
}

type cfgHTTP struct {
	Addr string `yaml:"addr" default:":8080" env:"ADDR"`
}

type cfgHistory struct {
	Path      string        `yaml:"path" default:"curtain.db" env:"PATH"`
	Retention time.Duration `yaml:"retention" default:"720h" env:"RETENTION"`
}

type cfgIntervals struct {
	LightPublish time.Duration `yaml:"light_publish" default:"30s"`
	Heartbeat    time.Duration `yaml:"heartbeat" default:"1m"`
	Prune        time.Duration `yaml:"prune" default:"24h"`
}

type cfgMailgun struct {
	Enabled    bool     `yaml:"enabled" default:"false" env:"ENABLED"`
	Domain     string   `yaml:"domain" env:"DOMAIN"`
	APIKey     string   `yaml:"api_key" env:"API_KEY"`
	Sender     string   `yaml:"sender" env:"SENDER"`
	Recipients []string `yaml:"recipients"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	Serial    cfgSerial    `yaml:"serial" env:"SERIAL"`
	MQTT      cfgMQTT      `yaml:"mqtt" env:"MQTT"`
	HASS      cfgHASS      `yaml:"hass" env:"HASS"`
	HTTP      cfgHTTP      `yaml:"http" env:"HTTP"`
	History   cfgHistory   `yaml:"history" env:"HISTORY"`
	Intervals cfgIntervals `yaml:"intervals"`
	Mailgun   cfgMailgun   `yaml:"mailgun" env:"MAILGUN"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "C2M",
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

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}

func topicsFromConfig() mqtt.Topics {
	topics := Cfg.MQTT.Topics
	defaults := mqtt.DefaultTopics()

	if topics.LightReading == "" {
		topics.LightReading = defaults.LightReading
	}
	if topics.PositionStatus == "" {
		topics.PositionStatus = defaults.PositionStatus
	}
	if topics.SystemStatus == "" {
		topics.SystemStatus = defaults.SystemStatus
	}
	if topics.ControlCommand == "" {
		topics.ControlCommand = defaults.ControlCommand
	}
	if topics.Alerts == "" {
		topics.Alerts = defaults.Alerts
	}
	if topics.Heartbeat == "" {
		topics.Heartbeat = defaults.Heartbeat
	}
	return topics
}
