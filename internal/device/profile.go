// Package device is the thin boundary above the transport: it pairs a
// product profile with a connection, runs the common settings/state
// synchronization after connect, and exposes a few convenience commands.
// The full command surface of each product is deliberately not wrapped;
// callers reach for Send and the state store directly.
package device

import (
	"github.com/danmuck/dronectl/internal/discovery"
	"github.com/danmuck/dronectl/internal/network"
)

// Profile is the per-product transport arbitration: which channels a
// product uses and whether it streams video that must be switched off.
type Profile struct {
	DeviceID string
	Model    string
	Plan     network.Plan

	// VideoProject names the project carrying MediaStreaming.VideoEnable.
	// Empty for products without a camera stream.
	VideoProject string
}

// Camera products use an extra low-latency channel for piloting; the
// jumping products get by with the acknowledged and best-effort pair.
func profiles() []Profile {
	bebopPlan := network.Plan{
		Ack:        11,
		BestEffort: 10,
		LowLatency: 12,
		Command:    []uint8{127, 126},
	}
	sumoPlan := network.Plan{
		Ack:        11,
		BestEffort: 10,
		Command:    []uint8{127, 126},
	}
	return []Profile{
		{DeviceID: discovery.DeviceBebop, Model: "Bebop Drone", Plan: bebopPlan, VideoProject: "ARDrone3"},
		{DeviceID: discovery.DeviceBebop2, Model: "Bebop 2", Plan: bebopPlan, VideoProject: "ARDrone3"},
		{DeviceID: discovery.DeviceJumpingSumo, Model: "Jumping Sumo", Plan: sumoPlan, VideoProject: "JumpingSumo"},
		{DeviceID: discovery.DeviceJumpingNight, Model: "Jumping Night", Plan: sumoPlan, VideoProject: "JumpingSumo"},
		{DeviceID: discovery.DeviceJumpingRace, Model: "Jumping Race", Plan: sumoPlan, VideoProject: "JumpingSumo"},
	}
}

// ProfileFor resolves the product profile for a discovered device id.
func ProfileFor(deviceID string) (Profile, bool) {
	for _, p := range profiles() {
		if p.DeviceID == deviceID {
			return p, true
		}
	}
	return Profile{}, false
}
