package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/allape/kvmbridge/config"
	"github.com/allape/kvmbridge/factory"
	"github.com/allape/kvmbridge/kvm/conn"
	"github.com/allape/kvmbridge/kvm/device"
	"github.com/allape/kvmbridge/logger"
)

var log = logger.New("[main]")

func main() {
	conf, err := config.GetConfig()
	if err != nil {
		log.Fatalln("get config:", err)
	}

	c, err := factory.ConnFromConfig(conf)
	if err != nil {
		log.Fatalln("conn from config:", err)
	}
	defer func() {
		_ = c.Disconnect()
	}()

	keyboard, err := factory.KeyboardFromConfig(conf, c)
	if err != nil {
		log.Fatalln("keyboard from config:", err)
	}

	mouse, err := factory.MouseFromConfig(conf, c)
	if err != nil {
		log.Fatalln("mouse from config:", err)
	}

	enum, err := factory.EnumeratorFromConfig(conf)
	if err != nil {
		log.Fatalln("device driver from config:", err)
	}

	monitor, err := factory.MonitorFromConfig(conf)
	if err != nil {
		log.Fatalln("monitor from config:", err)
	}

	d := &daemon{
		conf:     conf,
		conn:     c,
		keyboard: keyboard,
		mouse:    mouse,
		monitor:  monitor,
		hub:      NewHub(),
	}

	c.OnEvent(func(e conn.Event) {
		d.hub.Broadcast(string(e.Type), e)
	})

	if monitor != nil {
		monitor.OnChange(func(e device.ChangeEvent) {
			d.hub.Broadcast("devices", e)
			d.autoConnect(e)
		})
		if err = monitor.Start(); err != nil {
			log.Println("start monitor:", err)
		}
		defer monitor.Stop()
	}

	if err = d.connect(enum); err != nil {
		log.Println("connect:", err, "(waiting for the device to appear)")
	}

	router := d.setupRouter()
	go func() {
		log.Fatalln(router.Run(conf.Server.Addr))
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	log.Println("started")
	sig := <-sigs
	log.Println("exiting with", sig)
}

func (d *daemon) connect(enum device.Enumerator) error {
	port, err := factory.ResolveSerialPort(d.conf, enum)
	if err != nil {
		return err
	}
	return d.conn.Connect(port)
}

// autoConnect retries the serial link when a bridge carrying a serial
// port shows up while we are disconnected.
func (d *daemon) autoConnect(e device.ChangeEvent) {
	if d.conn.State() != conn.StateDisconnected {
		return
	}

	for _, r := range e.ChangesFromLast.Added {
		if r.SerialPort == "" {
			continue
		}

		port := d.conf.Serial.Port
		if port == config.PortAuto {
			port = r.SerialPort
		}

		log.Println("device appeared, connecting to", port)
		if err := d.conn.Connect(port); err != nil {
			log.Println("auto connect:", err)
		}
		return
	}
}
