package network

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/dronectl/internal/protocol/dict"
)

var ErrInvalidConfig = errors.New("network: invalid config")

// Config carries the controller identity and the transport reliability
// tunables. The reliability constants mirror the device firmware's timings
// and are configuration, not negotiated protocol values.
type Config struct {
	// D2CPort is the local UDP port the device will send frames to. It is
	// announced to the device during the handshake.
	D2CPort int

	// ControllerType and ControllerName identify this controller to the
	// device. Any non-empty strings are accepted by the devices.
	ControllerType string
	ControllerName string

	// DeviceID optionally pins the connection to one device serial; devices
	// refuse the handshake when it does not match their own.
	DeviceID string

	// AckTimeout is the wait per transmission attempt before an acknowledged
	// frame becomes due for retransmission.
	AckTimeout time.Duration

	// MaxRetries bounds retransmissions after the first send. A command is
	// reported failed once the final attempt times out.
	MaxRetries int

	// RetryScanInterval is the cadence at which the send loop scans reliable
	// channels for due retransmissions.
	RetryScanInterval time.Duration

	// PingInterval is the keep-alive cadence on the ping channel.
	PingInterval time.Duration

	// DisconnectTimeout is the receive-silence window after which the
	// connection tears itself down.
	DisconnectTimeout time.Duration

	// SendQueueSize bounds commands waiting for the send loop.
	SendQueueSize int

	// EnqueueWait is how long Send blocks on a full queue before giving up.
	EnqueueWait time.Duration

	// HandshakeTimeout bounds the whole port-negotiation exchange.
	HandshakeTimeout time.Duration

	// Table resolves commands both ways; nil selects the built-in table.
	Table *dict.Table

	// OnDisconnect, when set, fires after an autonomous teardown (receive
	// silence). It is not called for a deliberate Close.
	OnDisconnect func()
}

// DefaultConfig returns the timings the devices are known to work with.
func DefaultConfig() Config {
	return Config{
		D2CPort:           54321,
		ControllerType:    "computer",
		ControllerName:    "dronectl",
		AckTimeout:        150 * time.Millisecond,
		MaxRetries:        5,
		RetryScanInterval: 25 * time.Millisecond,
		PingInterval:      1 * time.Second,
		DisconnectTimeout: 5 * time.Second,
		SendQueueSize:     64,
		EnqueueWait:       50 * time.Millisecond,
		HandshakeTimeout:  5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.D2CPort <= 0 || c.D2CPort > 65535 {
		return fmt.Errorf("%w: d2c port %d", ErrInvalidConfig, c.D2CPort)
	}
	if strings.TrimSpace(c.ControllerType) == "" {
		return fmt.Errorf("%w: missing controller type", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ControllerName) == "" {
		return fmt.Errorf("%w: missing controller name", ErrInvalidConfig)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout %v", ErrInvalidConfig, c.AckTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryScanInterval <= 0 {
		return fmt.Errorf("%w: retry scan interval %v", ErrInvalidConfig, c.RetryScanInterval)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: ping interval %v", ErrInvalidConfig, c.PingInterval)
	}
	if c.DisconnectTimeout <= 0 {
		return fmt.Errorf("%w: disconnect timeout %v", ErrInvalidConfig, c.DisconnectTimeout)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: send queue size %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.EnqueueWait < 0 {
		return fmt.Errorf("%w: enqueue wait %v", ErrInvalidConfig, c.EnqueueWait)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	return nil
}

// maxAttempts is the total transmissions granted to one acknowledged frame.
func (c Config) maxAttempts() int {
	return c.MaxRetries + 1
}
