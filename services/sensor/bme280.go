package sensor

import (
	"context"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"

	"envnode-go/errcode"
	"envnode-go/types"
)

// BME280 adapts the tinygo BME280 driver to the Probe interface with the
// firmware's fixed-point units. The I²C bus must already be configured and
// is owned exclusively by this probe.
type BME280 struct {
	dev bme280.Device
}

// NewBME280 creates the probe on the given bus and configures the device.
func NewBME280(i2c drivers.I2C) (*BME280, error) {
	p := &BME280{dev: bme280.New(i2c)}
	p.dev.Configure()
	if !p.dev.Connected() {
		return nil, &errcode.E{C: errcode.SensorRead, Op: "configure", Msg: "bme280 not responding"}
	}
	return p, nil
}

// Read acquires one sample. Driver units: milli-°C, milli-Pa and
// hundredths of %RH.
func (p *BME280) Read(_ context.Context) (types.Sample, error) {
	milliC, err := p.dev.ReadTemperature()
	if err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "temperature", err)
	}
	milliPa, err := p.dev.ReadPressure()
	if err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "pressure", err)
	}
	rhx100, err := p.dev.ReadHumidity()
	if err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "humidity", err)
	}

	return types.Sample{
		DeciC:  int16(milliC / 100),
		RHx100: clampRH(rhx100),
		DPa:    uint32(milliPa / 10_000),
	}, nil
}

func clampRH(v int32) uint16 {
	if v < 0 {
		return 0
	}
	if v > 10_000 {
		return 10_000
	}
	return uint16(v)
}
