//go:build rp2040

// Command envnode is the Pico W firmware image: a BME280 on I2C0, the
// 1.54" tri-color panel on SPI1 and the CYW43439 radio for time sync and
// optional MQTT telemetry. main runs exactly one wake cycle and ends in
// deep sleep; the wake reset re-enters main.
package main

import (
	"context"
	"io"
	"log/slog"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"envnode-go/bus"
	"envnode-go/drivers/epd154"
	"envnode-go/drivers/lowpower"
	"envnode-go/drivers/rtcmem"
	"envnode-go/services/cycle"
	"envnode-go/services/display"
	"envnode-go/services/netlink"
	"envnode-go/services/sensor"
	"envnode-go/services/telemetry"
	"envnode-go/services/timesync"
	"envnode-go/types"
)

// Injected via linker flags, e.g.
//
//	tinygo flash -target=pico-w \
//	  -ldflags="-X main.ssid=mynet -X main.pass=secret" ./cmd/envnode
var (
	ssid string
	pass string
	// brokerHost enables telemetry when non-empty.
	brokerHost string
)

const (
	hostname   = "envnode"
	brokerPort = 1883

	// Waveshare Pico-ePaper wiring.
	pinEpdCS   = machine.GP9
	pinEpdDC   = machine.GP8
	pinEpdRST  = machine.GP12
	pinEpdBusy = machine.GP13
)

var cycleConfig = types.CycleConfig{
	SleepPeriod:  5 * time.Minute,
	AwakePeriod:  5 * time.Minute,
	SamplePeriod: time.Minute,
	ChannelCap:   3,
	Telemetry:    false, // overridden below when a broker is configured
}

func main() {
	// Debug console mirrors the USB serial log onto UART0 so a logic
	// analyzer or picoprobe sees output even before USB enumerates.
	uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})
	log := slog.New(slog.NewTextHandler(
		io.MultiWriter(machine.Serial, uartx.UART0),
		&slog.HandlerOptions{Level: slog.LevelInfo},
	))

	boot := rtcmem.BumpBootCount()
	log.Info("envnode starting", slog.Uint64("boot", uint64(boot)))

	probe, panel := configurePeripherals(log)
	status := bus.New(8)

	cfg := cycleConfig
	cfg.Telemetry = brokerHost != ""
	creds := types.Credentials{SSID: ssid, Pass: pass}

	// The radio comes up lazily: a restored clock with telemetry disabled
	// never powers it at all. With telemetry enabled the session opened for
	// time sync is reused by the uplink and closed by the orchestrator.
	var link *netlink.Session
	openLink := func() (*netlink.Session, error) {
		if link != nil {
			return link, nil
		}
		s, err := netlink.Open(netlink.Config{
			Hostname: hostname,
			Creds:    creds,
			Log:      log,
			Status:   status,
		})
		if err != nil {
			return nil, err
		}
		link = s
		return link, nil
	}

	source := timesync.SourceFunc(func(ctx context.Context) (timesync.Result, error) {
		s, err := openLink()
		if err != nil {
			return timesync.Result{}, err
		}
		if !cfg.Telemetry {
			defer func() {
				s.Close()
				link = nil
			}()
		}
		src := &timesync.HTTPSource{Link: s, Log: log}
		return src.Synchronize(ctx)
	})

	deps := cycle.Deps{
		Store:   rtcmem.Store{},
		Source:  source,
		Probe:   probe,
		Panel:   panel,
		Sleeper: lowpower.Sleeper{},
		Status:  status,
		Log:     log,
	}
	if cfg.Telemetry {
		deps.Uplink = &linkClosingUplink{
			Uplink: &telemetry.Uplink{
				Pub: &telemetry.MQTTPublisher{
					Link:     openLink,
					Host:     brokerHost,
					Port:     brokerPort,
					ClientID: hostname,
					Log:      log,
				},
				Status: status,
				Log:    log,
			},
			link: &link,
		}
	}

	// On hardware Run ends inside DeepSleep; reaching here means the clock
	// record could not be written.
	err := cycle.Run(context.Background(), deps, cfg)
	for {
		log.Error("cycle aborted", slog.Any("err", err))
		time.Sleep(time.Second)
	}
}

// linkClosingUplink makes sure the radio session opened for time sync goes
// down with the uplink even when no reading was ever published (the MQTT
// transport connects lazily and then owns only its own session reference).
// Session.Close is idempotent so the overlap is harmless.
type linkClosingUplink struct {
	*telemetry.Uplink
	link **netlink.Session
}

func (u *linkClosingUplink) Close() error {
	err := u.Uplink.Close()
	if *u.link != nil {
		(*u.link).Close()
		*u.link = nil
	}
	return err
}

func configurePeripherals(log *slog.Logger) (sensor.Probe, display.Panel) {
	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA: machine.GP4,
		SCL: machine.GP5,
	})
	if err != nil {
		haltForever(log, "configure i2c", err)
	}
	probe, err := sensor.NewBME280(machine.I2C0)
	if err != nil {
		haltForever(log, "configure bme280", err)
	}

	err = machine.SPI1.Configure(machine.SPIConfig{
		Frequency: 4_000_000,
		SCK:       machine.GP10,
		SDO:       machine.GP11,
	})
	if err != nil {
		haltForever(log, "configure spi", err)
	}
	for _, p := range []machine.Pin{pinEpdCS, pinEpdDC, pinEpdRST} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	pinEpdBusy.Configure(machine.PinConfig{Mode: machine.PinInput})

	epd := epd154.New(machine.SPI1,
		pinEpdCS.Set, pinEpdDC.Set, pinEpdRST.Set,
		pinEpdBusy.Get)
	if err := epd.Configure(epd154.Config{}); err != nil {
		haltForever(log, "configure panel", err)
	}

	return probe, display.NewDashboard(epd)
}

// haltForever logs at 1Hz so the failure is visible whenever a serial
// monitor attaches.
func haltForever(log *slog.Logger, op string, err error) {
	for {
		log.Error(op, slog.Any("err", err))
		time.Sleep(time.Second)
	}
}
