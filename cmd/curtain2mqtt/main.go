package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"curtainctl/internal/api"
	"curtainctl/internal/history"
	"curtainctl/internal/mqtt"
	"curtainctl/internal/serialbridge"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	loadConfigFromYamlFile(*configPath)

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())

	hist, err := history.Open(Cfg.History.Path)
	if err != nil {
		logrus.Fatal(err)
	}
	defer hist.Close()

	device := serialbridge.New(Cfg.Serial.Port, Cfg.Serial.Baud)
	go device.Run(ctx)

	var bridge *mqtt.Bridge
	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		if bridge != nil {
			subscribe(ctx, m, bridge, device)
		}
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	bridge = mqtt.NewBridge(m, device, topicsFromConfig())
	subscribe(ctx, m, bridge, device)

	wireHistory(device, bridge, hist)

	server := api.NewServer(device, hist)
	go serveHTTP(server)

	go publishLoop(ctx, device, bridge, hist)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		oscall := <-c
		log.Printf("system call:%+v", oscall)
		cancel()
	}()

	<-ctx.Done()

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())
	time.Sleep(cleanupTime)
}

func subscribe(ctx context.Context, m paho.Client, bridge *mqtt.Bridge, device *serialbridge.Manager) {
	if Cfg.HASS.Enabled {
		entity := mqtt.NewHACover(bridge, Cfg.HASS.Name, device.State().FirmwareVersion)
		if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, entity); err != nil {
			logrus.Fatal(err)
		}
	}

	if err := bridge.Subscribe(ctx); err != nil {
		logrus.Error(err)
	}
}

// wireHistory hooks device events and accepted commands into the database
// and the alert mail.
func wireHistory(device *serialbridge.Manager, bridge *mqtt.Bridge, hist *history.Store) {
	device.On("LIGHT", func(v string) {
		raw, err := strconv.Atoi(v)
		if err != nil {
			return
		}
		if err := hist.InsertLightReading(raw, lightPercent(device.State())); err != nil {
			logrus.Errorf("history: light reading: %s", err)
		}
	})

	device.On("MOTOR", func(v string) {
		st := device.State()
		if st.Mode != "auto" {
			return
		}
		var op string
		switch strings.ToLower(v) {
		case "opening":
			op = "open"
		case "closing":
			op = "close"
		default:
			return
		}
		if err := hist.LogOperation(op, "auto", st.Light); err != nil {
			logrus.Errorf("history: operation: %s", err)
		}
	})

	device.On("ERROR", func(v string) {
		if err := hist.LogError(v, v, "device"); err != nil {
			logrus.Errorf("history: error log: %s", err)
		}
		if Cfg.Mailgun.Enabled && v == "MOTOR_TIMEOUT" {
			go sendMail(Cfg.Mailgun, "Curtain motor timeout",
				"The curtain motor hit its safety timeout and was stopped. The curtain position is now unknown.")
		}
	})

	bridge.OnCommand(func(cmd string) {
		if cmd == "stop" || cmd == "calibrate" {
			return
		}
		if err := hist.LogOperation(cmd, "mqtt", device.State().Light); err != nil {
			logrus.Errorf("history: operation: %s", err)
		}
	})
}

// lightPercent maps the raw reading onto the calibrated range the same way
// the firmware reports it.
func lightPercent(st serialbridge.Snapshot) float64 {
	if !st.Calibrated || st.LightMax <= st.LightMin {
		return 0
	}
	p := float64(st.Light-st.LightMin) / float64(st.LightMax-st.LightMin) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func serveHTTP(server *api.Server) {
	h := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(server.Router())
	h = handlers.LoggingHandler(logrus.StandardLogger().Writer(), h)

	logrus.Infof("http: listening on %s", Cfg.HTTP.Addr)
	if err := http.ListenAndServe(Cfg.HTTP.Addr, h); err != nil {
		logrus.Fatal(err)
	}
}

// publishLoop drives the periodic MQTT publications and database pruning.
func publishLoop(ctx context.Context, device *serialbridge.Manager, bridge *mqtt.Bridge, hist *history.Store) {
	light := time.NewTicker(Cfg.Intervals.LightPublish)
	heartbeat := time.NewTicker(Cfg.Intervals.Heartbeat)
	prune := time.NewTicker(Cfg.Intervals.Prune)
	defer light.Stop()
	defer heartbeat.Stop()
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-light.C:
			if device.IsConnected() {
				bridge.PublishLightReading(device.State().Light)
			}
		case <-heartbeat.C:
			bridge.PublishHeartbeat()
			bridge.PublishSystemStatus(device.State())
		case <-prune.C:
			if err := hist.Prune(Cfg.History.Retention); err != nil {
				logrus.Errorf("history: prune: %s", err)
			}
		}
	}
}
