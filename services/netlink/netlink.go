// Package netlink manages the WiFi link on the Pico W. The radio is the
// largest power draw on the board, so the link is opened on demand and must
// be fully released before the orchestrator enters deep sleep.
//
// The hardware session lives behind the rp2040 build tag; this file holds
// the portable configuration and the link states published on the status
// bus.
package netlink

import (
	"log/slog"

	"envnode-go/bus"
	"envnode-go/types"
)

// Link states published under bus.TopicNetLink.
const (
	StateDown    = "down"
	StateJoining = "joining"
	StateUp      = "up"
)

// Config describes how to bring the link up.
type Config struct {
	// Hostname is used for the DHCP request.
	Hostname string
	// Creds selects the network. An empty Pass joins an open network.
	Creds types.Credentials
	// MaxTCPConns sizes the TCP port table. Minimum 1.
	MaxTCPConns int

	Log    *slog.Logger
	Status *bus.Bus
}

func (c *Config) publish(state string) {
	if c.Status != nil {
		c.Status.Publish(bus.TopicNetLink, state)
	}
}
