// Package config loads the controller's runtime settings from a TOML file,
// overlaying only the keys the file defines onto the built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/dronectl/internal/discovery"
	"github.com/danmuck/dronectl/internal/network"
)

// Runtime is everything the controller binary needs: the transport tunables
// and the discovery filter.
type Runtime struct {
	Network   network.Config
	Discovery discovery.Config
}

// Default returns the settings the supported products work with out of the
// box.
func Default() Runtime {
	return Runtime{
		Network:   network.DefaultConfig(),
		Discovery: discovery.DefaultConfig(),
	}
}

// fileConfig maps the dronectl.toml keys. Durations are TOML strings in Go
// duration notation ("150ms", "5s").
type fileConfig struct {
	ControllerType string `toml:"controller_type"`
	ControllerName string `toml:"controller_name"`
	DeviceID       string `toml:"device_id"`
	D2CPort        int    `toml:"d2c_port"`

	AckTimeout        string `toml:"ack_timeout"`
	MaxRetries        int    `toml:"max_retries"`
	RetryScanInterval string `toml:"retry_scan_interval"`
	PingInterval      string `toml:"ping_interval"`
	DisconnectTimeout string `toml:"disconnect_timeout"`
	SendQueueSize     int    `toml:"send_queue_size"`
	EnqueueWait       string `toml:"enqueue_wait"`
	HandshakeTimeout  string `toml:"handshake_timeout"`

	DiscoveryDeviceIDs   []string `toml:"discovery_device_ids"`
	DiscoveryExpireAfter string   `toml:"discovery_expire_after"`
}

// Load reads path and overlays its defined keys onto Default.
func Load(path string) (Runtime, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Runtime{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("controller_type") {
		cfg.Network.ControllerType = strings.TrimSpace(raw.ControllerType)
	}
	if meta.IsDefined("controller_name") {
		cfg.Network.ControllerName = strings.TrimSpace(raw.ControllerName)
	}
	if meta.IsDefined("device_id") {
		cfg.Network.DeviceID = strings.TrimSpace(raw.DeviceID)
	}
	if meta.IsDefined("d2c_port") {
		cfg.Network.D2CPort = raw.D2CPort
	}
	if meta.IsDefined("max_retries") {
		cfg.Network.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("send_queue_size") {
		cfg.Network.SendQueueSize = raw.SendQueueSize
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"ack_timeout", raw.AckTimeout, &cfg.Network.AckTimeout},
		{"retry_scan_interval", raw.RetryScanInterval, &cfg.Network.RetryScanInterval},
		{"ping_interval", raw.PingInterval, &cfg.Network.PingInterval},
		{"disconnect_timeout", raw.DisconnectTimeout, &cfg.Network.DisconnectTimeout},
		{"enqueue_wait", raw.EnqueueWait, &cfg.Network.EnqueueWait},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Network.HandshakeTimeout},
		{"discovery_expire_after", raw.DiscoveryExpireAfter, &cfg.Discovery.ExpireAfter},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Runtime{}, fmt.Errorf("load config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if meta.IsDefined("discovery_device_ids") {
		cfg.Discovery.DeviceIDs = raw.DiscoveryDeviceIDs
	}

	if err := Validate(cfg); err != nil {
		return Runtime{}, err
	}
	return cfg, nil
}

// Validate rejects settings the transport or discovery layers would refuse.
func Validate(cfg Runtime) error {
	if err := cfg.Network.Validate(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Discovery.ExpireAfter <= 0 {
		return fmt.Errorf("load config: discovery expire after %v", cfg.Discovery.ExpireAfter)
	}
	for _, id := range cfg.Discovery.DeviceIDs {
		if len(id) != 4 {
			return fmt.Errorf("load config: device id %q is not a 4-digit product id", id)
		}
	}
	return nil
}
