package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/dronectl/internal/discovery"
	"github.com/danmuck/dronectl/internal/network"
	"github.com/danmuck/dronectl/internal/state"
)

var ErrUnsupportedDevice = errors.New("device: unsupported device id")

// InitTimeout bounds each wait of the post-connect synchronization.
const InitTimeout = 5 * time.Second

// Device is one connected product. All methods are safe for concurrent use;
// they delegate to the connection's own synchronization.
type Device struct {
	profile Profile
	desc    discovery.DeviceDescriptor
	conn    *network.Conn
}

// Connect opens the transport to a discovered device and runs the common
// initialization: full settings and state synchronization, then the clock.
// On any failure the connection is torn down and nothing is left running.
func Connect(desc *discovery.DeviceDescriptor, cfg network.Config) (*Device, error) {
	prof, ok := ProfileFor(desc.DeviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDevice, desc.DeviceID)
	}
	conn, err := network.Open(desc, prof.Plan, cfg)
	if err != nil {
		return nil, err
	}
	d := &Device{profile: prof, desc: *desc, conn: conn}
	if err := d.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("device: initialize %s: %w", desc.Name, err)
	}
	return d, nil
}

// Conn exposes the raw transport for commands this package does not wrap.
func (d *Device) Conn() *network.Conn {
	return d.conn
}

// Store exposes the device's synchronized state.
func (d *Device) Store() *state.Store {
	return d.conn.Store()
}

func (d *Device) Profile() Profile {
	return d.profile
}

func (d *Device) Descriptor() discovery.DeviceDescriptor {
	return d.desc
}

// initialize mirrors the product bring-up every controller performs: ask for
// all settings and all states, wait for the end-of-sync markers, then push
// the current date and time. Camera products also get their video stream
// switched off; this controller never consumes it.
func (d *Device) initialize() error {
	if err := d.sendAcked("common", "Settings", "AllSettings"); err != nil {
		return err
	}
	if err := d.WaitAnswer("common", "SettingsState", "AllSettingsChanged", InitTimeout); err != nil {
		return err
	}
	if err := d.sendAcked("common", "Common", "AllStates"); err != nil {
		return err
	}
	if err := d.WaitAnswer("common", "CommonState", "AllStatesChanged", InitTimeout); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := d.sendAcked("common", "Common", "CurrentDate", now.Format("2006-01-02")); err != nil {
		return err
	}
	if err := d.sendAcked("common", "Common", "CurrentTime", now.Format("T150405+0000")); err != nil {
		return err
	}

	if d.profile.VideoProject != "" {
		if err := d.sendAcked(d.profile.VideoProject, "MediaStreaming", "VideoEnable", uint8(0)); err != nil {
			return err
		}
	}
	log.Info().Str("device", d.desc.Name).Str("model", d.profile.Model).Msg("device initialized")
	return nil
}

// sendAcked sends one acknowledged command and waits for its delivery
// outcome, bounded by the init timeout.
func (d *Device) sendAcked(project, class, command string, args ...any) error {
	p, err := d.conn.Send(project, class, command, true, args...)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), InitTimeout)
	defer cancel()
	return p.Wait(ctx)
}

// WaitAnswer blocks until the device reports the command, or the timeout
// elapses. A value that arrived before the call counts as answered.
func (d *Device) WaitAnswer(project, class, command string, timeout time.Duration) error {
	if _, ok := d.Store().Get(project, class, command); ok {
		return nil
	}
	_, err := d.Store().WaitFor(project, class, command, nil, timeout)
	if errors.Is(err, state.ErrTimedOut) {
		// The answer may have been applied between the Get and the waiter
		// registration.
		if _, ok := d.Store().Get(project, class, command); ok {
			return nil
		}
	}
	return err
}

// Battery reports the last-known battery percentage, 0 when unreported.
func (d *Device) Battery() int {
	v, ok := d.Store().Get("common", "CommonState", "BatteryStateChanged")
	if !ok || v.Args == nil {
		return 0
	}
	return int(v.Args["percent"].Uint)
}

// TakeOff commands a flying product to take off.
func (d *Device) TakeOff() error {
	return d.sendAcked("ARDrone3", "Piloting", "TakeOff")
}

// Land commands a flying product to land.
func (d *Device) Land() error {
	return d.sendAcked("ARDrone3", "Piloting", "Landing")
}

// Emergency cuts the motors. It rides the low-latency channel on products
// that have one.
func (d *Device) Emergency() error {
	_, err := d.conn.SendPreferred("ARDrone3", "Piloting", "Emergency")
	return err
}

// Posture switches a jumping product's posture.
func (d *Device) Posture(posture int32) error {
	return d.sendAcked("JumpingSumo", "Piloting", "Posture", posture)
}

// Jump triggers a jumping product's jump animation.
func (d *Device) Jump(jumpType int32) error {
	return d.sendAcked("JumpingSumo", "Animations", "Jump", jumpType)
}

// Close tears down the transport. Idempotent.
func (d *Device) Close() error {
	return d.conn.Close()
}
