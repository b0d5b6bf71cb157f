package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"

	"curtainctl/internal/device"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "curtaind.yaml", "curtaind.yaml file path")
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
	defer cancel()

	openGPIO()
	if needsGPIO() {
		defer rpio.Close()
	}

	in, out := transportFromConfig()

	// commands arrive on a byte channel so the control loop can drain
	// without blocking on the transport
	input := make(chan byte, 256)
	go pump(in, input)

	ctrl := device.New(
		deviceConfigFromConfig(),
		sensorFromConfig(),
		motorFromConfig(ctx),
		nvmFromConfig(),
		input,
		out,
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		oscall := <-c
		log.Printf("system call:%+v", oscall)
		cancel()
	}()

	ctrl.Boot(time.Now())
	if err := ctrl.Run(ctx); err != nil {
		logrus.Fatal(err)
	}
}

func pump(r io.Reader, out chan<- byte) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			out <- b
		}
		if err != nil {
			if err != io.EOF {
				logrus.Errorf("transport: read: %s", err)
			}
			close(out)
			return
		}
	}
}
