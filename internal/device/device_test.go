package device

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/dronectl/internal/discovery"
	"github.com/danmuck/dronectl/internal/handshake"
	"github.com/danmuck/dronectl/internal/network"
	"github.com/danmuck/dronectl/internal/protocol/dict"
	"github.com/danmuck/dronectl/internal/protocol/frame"
	"github.com/danmuck/dronectl/internal/testutil/testlog"
)

// fakeProduct answers the handshake and plays the device side of the common
// bring-up: it acks every acknowledged frame and replies to the settings and
// state synchronization requests.
type fakeProduct struct {
	t     *testing.T
	ln    net.Listener
	quiet bool // handshake only: never ack, never reply

	mu       sync.Mutex
	udp      *net.UDPConn
	ctrlAddr *net.UDPAddr
	seq      uint8
	commands []string

	closed chan struct{}
	wg     sync.WaitGroup
}

func startFakeProduct(t *testing.T, quiet bool) *fakeProduct {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	udp, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	p := &fakeProduct{t: t, ln: ln, udp: udp, quiet: quiet, closed: make(chan struct{})}
	p.wg.Add(2)
	go p.serveHandshake()
	go p.serve()
	t.Cleanup(p.stop)
	return p
}

func (p *fakeProduct) stop() {
	select {
	case <-p.closed:
		return
	default:
	}
	close(p.closed)
	p.ln.Close()
	p.udp.Close()
	p.wg.Wait()
}

func (p *fakeProduct) descriptor() *discovery.DeviceDescriptor {
	return &discovery.DeviceDescriptor{
		Name:     "BebopDrone-Test",
		DeviceID: discovery.DeviceBebop2,
		Addr:     net.IPv4(127, 0, 0, 1),
		Port:     p.ln.Addr().(*net.TCPAddr).Port,
	}
}

func (p *fakeProduct) serveHandshake() {
	defer p.wg.Done()
	conn, err := p.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var req handshake.Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}
	p.mu.Lock()
	p.ctrlAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: req.D2CPort}
	p.mu.Unlock()

	reply, _ := json.Marshal(handshake.Reply{C2DPort: p.udp.LocalAddr().(*net.UDPAddr).Port})
	conn.Write(reply)
}

func (p *fakeProduct) serve() {
	defer p.wg.Done()
	buf := make([]byte, frame.MaxFrameLen)
	for {
		n, _, err := p.udp.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := buf[:n]
		for len(data) > 0 {
			f, consumed, err := frame.Decode(data)
			if err != nil {
				break
			}
			data = data[consumed:]
			p.handle(f)
		}
	}
}

func (p *fakeProduct) handle(f frame.Frame) {
	if p.quiet {
		return
	}
	if f.Type == frame.TypeDataWithAck {
		p.send(frame.Frame{
			Type:      frame.TypeAck,
			ChannelID: f.ChannelID + network.AckChannelFlag,
			Seq:       p.nextSeq(),
			Payload:   []byte{f.Seq},
		})
	}
	if f.Type != frame.TypeData && f.Type != frame.TypeDataWithAck && f.Type != frame.TypeLowLatency {
		return
	}
	if f.ChannelID == network.PingChannel || f.ChannelID >= network.AckChannelFlag {
		return
	}
	s, _, err := dict.Default().Decode(f.Payload)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.commands = append(p.commands, s.Name())
	p.mu.Unlock()

	switch s.Name() {
	case "common.Settings.AllSettings":
		p.reply("common", "SettingsState", "AllSettingsChanged")
	case "common.Common.AllStates":
		p.reply("common", "CommonState", "BatteryStateChanged", uint8(42))
		p.reply("common", "CommonState", "AllStatesChanged")
	}
}

func (p *fakeProduct) reply(project, class, command string, args ...any) {
	s, err := dict.Default().ByName(project, class, command)
	if err != nil {
		p.t.Errorf("fake product: resolve: %v", err)
		return
	}
	payload, err := dict.Encode(s, args...)
	if err != nil {
		p.t.Errorf("fake product: encode: %v", err)
		return
	}
	p.send(frame.Frame{
		Type:      frame.TypeDataWithAck,
		ChannelID: 127,
		Seq:       p.nextSeq(),
		Payload:   payload,
	})
}

func (p *fakeProduct) nextSeq() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.seq
	p.seq++
	return s
}

func (p *fakeProduct) send(f frame.Frame) {
	p.mu.Lock()
	addr := p.ctrlAddr
	p.mu.Unlock()
	if addr == nil {
		return
	}
	p.udp.WriteToUDP(frame.Encode(f), addr)
}

func (p *fakeProduct) sawCommand(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.commands {
		if c == name {
			return true
		}
	}
	return false
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("probe udp port: %v", err)
	}
	port := sock.LocalAddr().(*net.UDPAddr).Port
	sock.Close()
	return port
}

func testNetConfig(t *testing.T) network.Config {
	cfg := network.DefaultConfig()
	cfg.D2CPort = freeUDPPort(t)
	cfg.ControllerName = "dronectl-test"
	return cfg
}

func TestProfileFor(t *testing.T) {
	p, ok := ProfileFor(discovery.DeviceBebop2)
	if !ok {
		t.Fatal("bebop 2 profile missing")
	}
	if p.Plan.LowLatency == 0 {
		t.Fatal("camera product missing low-latency channel")
	}
	if err := p.Plan.Validate(); err != nil {
		t.Fatalf("plan invalid: %v", err)
	}

	p, ok = ProfileFor(discovery.DeviceJumpingSumo)
	if !ok {
		t.Fatal("jumping sumo profile missing")
	}
	if p.Plan.LowLatency != 0 {
		t.Fatal("jumping product should not have a low-latency channel")
	}

	if _, ok := ProfileFor("ffff"); ok {
		t.Fatal("unknown device id resolved to a profile")
	}
}

func TestConnectRunsInitSequence(t *testing.T) {
	testlog.Start(t)
	p := startFakeProduct(t, false)

	d, err := Connect(p.descriptor(), testNetConfig(t))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Close()

	for _, name := range []string{
		"common.Settings.AllSettings",
		"common.Common.AllStates",
		"common.Common.CurrentDate",
		"common.Common.CurrentTime",
		"ARDrone3.MediaStreaming.VideoEnable",
	} {
		if !p.sawCommand(name) {
			t.Fatalf("device never received %s", name)
		}
	}

	if got := d.Battery(); got != 42 {
		t.Fatalf("battery = %d", got)
	}
	if d.Profile().Model != "Bebop 2" {
		t.Fatalf("model = %q", d.Profile().Model)
	}

	if err := d.TakeOff(); err != nil {
		t.Fatalf("TakeOff: %v", err)
	}
	if !p.sawCommand("ARDrone3.Piloting.TakeOff") {
		t.Fatal("device never received the take off command")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConnectUnsupportedDevice(t *testing.T) {
	testlog.Start(t)
	desc := &discovery.DeviceDescriptor{
		Name:     "mystery",
		DeviceID: "ffff",
		Addr:     net.IPv4(127, 0, 0, 1),
		Port:     44444,
	}
	if _, err := Connect(desc, testNetConfig(t)); !errors.Is(err, ErrUnsupportedDevice) {
		t.Fatalf("Connect = %v, want ErrUnsupportedDevice", err)
	}
}

func TestConnectFailsWhenInitTimesOut(t *testing.T) {
	testlog.Start(t)
	p := startFakeProduct(t, true) // completes the handshake, then never acks anything

	cfg := testNetConfig(t)
	cfg.AckTimeout = 30 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryScanInterval = 10 * time.Millisecond
	cfg.DisconnectTimeout = 500 * time.Millisecond

	if _, err := Connect(p.descriptor(), cfg); err == nil {
		t.Fatal("Connect succeeded with an unresponsive device")
	}
}
