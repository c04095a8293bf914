package types

import "time"

// ------------------------
// Sensor sample & reading
// ------------------------

// Sample is one environmental measurement set.
// Fixed-point, small types to suit TinyGo.
type Sample struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
	// Tens of pascals (e.g. 10132 => 1013.2 hPa).
	DPa uint32 `json:"dpa"`
}

// Celsius returns the temperature as a float for rendering/upload paths.
func (s Sample) Celsius() float32 { return float32(s.DeciC) / 10 }

// RH returns the relative humidity in percent.
func (s Sample) RH() float32 { return float32(s.RHx100) / 100 }

// HPa returns the pressure in hectopascals.
func (s Sample) HPa() float32 { return float32(s.DPa) / 10 }

// Reading is a sample paired with the local wall-clock time it was taken.
// Readings are passed by value through the sample channel and never retained
// past rendering.
type Reading struct {
	At     time.Time
	Sample Sample
}

// ------------------------
// Cycle configuration
// ------------------------

// CycleConfig is the static configuration of one wake cycle. On device it is
// built from compile-time constants; the host simulator loads it from YAML.
// It is never mutated at runtime.
type CycleConfig struct {
	// SleepPeriod is the deep-sleep duration between cycles.
	SleepPeriod time.Duration `yaml:"sleep_period"`
	// AwakePeriod is how long the orchestrator lets the tasks run.
	AwakePeriod time.Duration `yaml:"awake_period"`
	// SamplePeriod is the sensor cadence. Must be <= AwakePeriod to
	// guarantee at least one reading per cycle (config invariant, not
	// enforced at run time).
	SamplePeriod time.Duration `yaml:"sample_period"`
	// ChannelCap is the sample channel capacity. Minimum 1.
	ChannelCap int `yaml:"channel_cap"`
	// Telemetry enables the MQTT uplink while awake. When set, the network
	// session outlives time sync and is closed by the orchestrator before
	// deep sleep.
	Telemetry bool `yaml:"telemetry"`
}

// Normalize applies the defaults used across the firmware.
func (c *CycleConfig) Normalize() {
	if c.SleepPeriod <= 0 {
		c.SleepPeriod = 5 * time.Minute
	}
	if c.AwakePeriod <= 0 {
		c.AwakePeriod = 5 * time.Minute
	}
	if c.SamplePeriod <= 0 {
		c.SamplePeriod = time.Minute
	}
	if c.ChannelCap < 1 {
		c.ChannelCap = 3
	}
}

// ------------------------
// Network credentials
// ------------------------

// Credentials for the WiFi network. On device these are injected through
// linker flags; the simulator does not use them.
type Credentials struct {
	SSID string `yaml:"ssid"`
	Pass string `yaml:"pass"`
}
