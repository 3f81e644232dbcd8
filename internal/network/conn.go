// Package network is the controller side of the device transport: it owns
// the UDP sockets, multiplexes frames over channels with per-class
// reliability, and feeds decoded commands into a state store.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/dronectl/internal/discovery"
	"github.com/danmuck/dronectl/internal/handshake"
	"github.com/danmuck/dronectl/internal/observability"
	"github.com/danmuck/dronectl/internal/protocol/dict"
	"github.com/danmuck/dronectl/internal/protocol/frame"
	"github.com/danmuck/dronectl/internal/state"
)

var (
	ErrNotConnected   = errors.New("network: not connected")
	ErrClosed         = errors.New("network: connection closed")
	ErrQueueFull      = errors.New("network: send queue full")
	ErrDeliveryFailed = errors.New("network: delivery failed")
	ErrNoChannel      = errors.New("network: no channel for delivery class")
	ErrInactive       = errors.New("network: no data within the disconnect window")
)

// Status is the connection lifecycle phase.
type Status string

const (
	StatusDisconnected  Status = "disconnected"
	StatusHandshaking   Status = "handshaking"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
)

// Conn is the network controller for one device. It runs a receive loop, a
// send/retry loop and a keep-alive, all stopped by Close or by receive
// silence. Callers interact only through Send, the state store, and Close.
type Conn struct {
	cfg    Config
	plan   Plan
	table  *dict.Table
	store  *state.Store
	device string

	sendSock *net.UDPConn
	recvSock *net.UDPConn

	mu      sync.Mutex
	status  Status
	sendChs map[uint8]*sendChannel
	recvChs map[uint8]*recvTracker

	queue *sendQueue

	done  chan struct{}
	loops sync.WaitGroup
	stop  sync.Once
}

// Open negotiates transport parameters with the device and starts the
// controller loops. On any failure nothing is left running and no sockets
// stay open.
func Open(desc *discovery.DeviceDescriptor, plan Plan, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == nil {
		table = dict.Default()
	}

	c := &Conn{
		cfg:     cfg,
		plan:    plan,
		table:   table,
		store:   state.New(),
		device:  desc.Name,
		status:  StatusHandshaking,
		sendChs: make(map[uint8]*sendChannel),
		recvChs: make(map[uint8]*recvTracker),
		queue:   newSendQueue(cfg.SendQueueSize),
		done:    make(chan struct{}),
	}

	hsAddr := net.JoinHostPort(desc.Addr.String(), strconv.Itoa(desc.Port))
	log.Info().Str("device", desc.Name).Str("addr", hsAddr).Msg("negotiating transport")
	reply, err := handshake.Negotiate(hsAddr, handshake.Request{
		D2CPort:        cfg.D2CPort,
		ControllerType: cfg.ControllerType,
		ControllerName: cfg.ControllerName,
		DeviceID:       cfg.DeviceID,
	}, cfg.HandshakeTimeout)
	if err != nil {
		observability.RecordHandshake(false)
		return nil, fmt.Errorf("network: handshake with %s: %w", desc.Name, err)
	}
	observability.RecordHandshake(true)

	recvSock, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.D2CPort})
	if err != nil {
		return nil, fmt.Errorf("network: bind d2c port %d: %w", cfg.D2CPort, err)
	}
	sendSock, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: desc.Addr, Port: reply.C2DPort})
	if err != nil {
		recvSock.Close()
		return nil, fmt.Errorf("network: dial c2d port %d: %w", reply.C2DPort, err)
	}
	c.recvSock = recvSock
	c.sendSock = sendSock

	for _, id := range []uint8{plan.Ack, plan.BestEffort, plan.LowLatency} {
		if id != 0 {
			c.sendChs[id] = newSendChannel(id)
		}
	}
	for _, id := range plan.Command {
		c.recvChs[id] = newRecvTracker()
	}

	c.status = StatusConnected
	c.loops.Add(2)
	go c.recvLoop()
	go c.sendLoop()

	log.Info().Str("device", desc.Name).Int("c2d_port", reply.C2DPort).
		Int("d2c_port", cfg.D2CPort).Msg("connected")
	return c, nil
}

// Store exposes the state fed by this connection's receive path.
func (c *Conn) Store() *state.Store {
	return c.store
}

// Status reports the current lifecycle phase.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send resolves, encodes and queues one command. ack selects acknowledged
// delivery; without it the schema's preferred class picks the channel. The
// returned handle is non-nil only for acknowledged delivery; Send itself
// never waits on the network.
func (c *Conn) Send(project, class, command string, ack bool, args ...any) (*Pending, error) {
	s, err := c.table.ByName(project, class, command)
	if err != nil {
		return nil, err
	}
	return c.send(s, ack, args)
}

// SendPreferred queues the command under its schema's preferred delivery
// class.
func (c *Conn) SendPreferred(project, class, command string, args ...any) (*Pending, error) {
	s, err := c.table.ByName(project, class, command)
	if err != nil {
		return nil, err
	}
	return c.send(s, s.Delivery == dict.DeliveryAck, args)
}

func (c *Conn) send(s *dict.Schema, ack bool, args []any) (*Pending, error) {
	payload, err := dict.Encode(s, args...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	connected := c.status == StatusConnected
	c.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	it := &queueItem{payload: payload}
	var p *Pending
	switch {
	case ack:
		it.channelID = c.plan.Ack
		it.frameType = frame.TypeDataWithAck
		p = newPending(s.Name())
		it.pending = p
	case s.Delivery == dict.DeliveryLowLatency:
		if c.plan.LowLatency == 0 {
			return nil, fmt.Errorf("%w: low latency for %s", ErrNoChannel, s.Name())
		}
		it.channelID = c.plan.LowLatency
		it.frameType = frame.TypeLowLatency
		it.supersedeKey = s.Name()
	default:
		it.channelID = c.plan.BestEffort
		it.frameType = frame.TypeData
	}

	if err := c.queue.push(it, c.cfg.EnqueueWait); err != nil {
		return nil, err
	}
	return p, nil
}

// Close tears the connection down: stops the loops, releases the sockets,
// fails every unsettled delivery handle and closes the state store. It is
// idempotent and safe from any goroutine.
func (c *Conn) Close() error {
	c.teardown(nil)
	return nil
}

func (c *Conn) teardown(cause error) {
	c.stop.Do(func() {
		c.mu.Lock()
		c.status = StatusDisconnecting
		c.mu.Unlock()

		close(c.done)
		c.recvSock.Close() // unblocks the receive loop
		c.loops.Wait()
		c.sendSock.Close()

		unsent := c.queue.close()
		c.mu.Lock()
		var orphaned []*Pending
		for _, ch := range c.sendChs {
			for seq := range ch.tracked {
				if p := ch.giveUp(seq); p != nil {
					orphaned = append(orphaned, p)
				}
			}
		}
		c.status = StatusDisconnected
		c.mu.Unlock()

		for _, it := range unsent {
			if it.pending != nil {
				it.pending.complete(ErrClosed)
			}
		}
		for _, p := range orphaned {
			p.complete(ErrClosed)
		}
		c.store.Close()

		if cause != nil {
			log.Warn().Err(cause).Str("device", c.device).Msg("connection lost")
			if c.cfg.OnDisconnect != nil {
				c.cfg.OnDisconnect()
			}
		} else {
			log.Info().Str("device", c.device).Msg("connection closed")
		}
	})
}

func (c *Conn) recvLoop() {
	defer c.loops.Done()
	buf := make([]byte, frame.MaxFrameLen)
	for {
		c.recvSock.SetReadDeadline(time.Now().Add(c.cfg.DisconnectTimeout))
		n, _, err := c.recvSock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn().Str("device", c.device).Dur("window", c.cfg.DisconnectTimeout).
					Msg("receive silence, disconnecting")
				go c.teardown(ErrInactive)
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Str("device", c.device).Msg("transient receive error")
			continue
		}
		c.handleDatagram(buf[:n])
	}
}

// handleDatagram walks the frames packed into one datagram. A malformed or
// truncated frame poisons only the remainder of its own datagram.
func (c *Conn) handleDatagram(data []byte) {
	for len(data) > 0 {
		f, n, err := frame.Decode(data)
		if err != nil {
			observability.RecordMalformedFrame()
			log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			return
		}
		data = data[n:]
		c.handleFrame(f)
	}
}

func (c *Conn) handleFrame(f frame.Frame) {
	observability.RecordFrameReceived(f.Type.String())
	if f.ChannelID == PingChannel {
		c.sendPong(f.Payload)
	}
	switch f.Type {
	case frame.TypeAck:
		c.handleAck(f)
	case frame.TypeData, frame.TypeLowLatency:
		c.handleData(f)
	case frame.TypeDataWithAck:
		c.handleData(f)
		// Acked even when the acceptance window rejected it; the device
		// keeps retransmitting otherwise.
		c.sendAck(f.ChannelID, f.Seq)
	}
}

func (c *Conn) handleAck(f frame.Frame) {
	if f.ChannelID < AckChannelFlag || len(f.Payload) != 1 {
		log.Debug().Uint8("channel", f.ChannelID).Int("len", len(f.Payload)).
			Msg("ignoring malformed ack")
		return
	}
	target := f.ChannelID - AckChannelFlag
	seq := f.Payload[0]

	c.mu.Lock()
	var p *Pending
	if ch, ok := c.sendChs[target]; ok {
		p = ch.acknowledge(seq)
	}
	c.mu.Unlock()

	if p != nil {
		observability.RecordDelivery("acked")
		p.complete(nil)
	}
}

func (c *Conn) handleData(f frame.Frame) {
	c.mu.Lock()
	tr, tracked := c.recvChs[f.ChannelID]
	accepted := tracked && tr.accept(f.Seq)
	c.mu.Unlock()
	if !accepted {
		// Untracked channels carry ping echoes and stream data; tracked
		// ones reject duplicates here.
		return
	}

	s, vals, err := c.table.Decode(f.Payload)
	if err != nil {
		observability.RecordUndecodable()
		log.Warn().Err(err).Uint8("channel", f.ChannelID).Msg("dropping undecodable command")
		return
	}
	c.store.Apply(s, vals)
	observability.RecordCommandApplied(s.Project)
}

func (c *Conn) sendPong(payload []byte) {
	c.transmitControl(frame.TypeData, PongChannel, payload)
}

// sendAck answers frame seq on the partner ack channel (command channel
// id + 128) with the sequence number as the single payload byte.
func (c *Conn) sendAck(channel, seq uint8) {
	c.transmitControl(frame.TypeAck, channel+AckChannelFlag, []byte{seq})
}

func (c *Conn) sendPing() {
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uint64(time.Now().UnixNano()))
	c.transmitControl(frame.TypeData, PingChannel, payload[:])
}

func (c *Conn) transmitControl(t frame.Type, channel uint8, payload []byte) {
	c.mu.Lock()
	ch := c.sendChannelFor(channel)
	seq := ch.nextSeq()
	c.mu.Unlock()
	c.transmit(frame.Encode(frame.Frame{Type: t, ChannelID: channel, Seq: seq, Payload: payload}), t)
}

// sendChannelFor lazily creates channels outside the plan: pongs, pings and
// the per-command ack channels. Callers hold c.mu.
func (c *Conn) sendChannelFor(id uint8) *sendChannel {
	ch, ok := c.sendChs[id]
	if !ok {
		ch = newSendChannel(id)
		c.sendChs[id] = ch
	}
	return ch
}

func (c *Conn) transmit(wire []byte, t frame.Type) {
	if _, err := c.sendSock.Write(wire); err != nil {
		select {
		case <-c.done:
		default:
			log.Warn().Err(err).Str("device", c.device).Msg("socket write failed")
		}
		return
	}
	observability.RecordFrameSent(t.String())
}

func (c *Conn) sendLoop() {
	defer c.loops.Done()
	retry := time.NewTicker(c.cfg.RetryScanInterval)
	defer retry.Stop()
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-c.queue.wake():
			c.drainQueue()
		case <-retry.C:
			c.retransmitDue()
		case <-ping.C:
			c.sendPing()
		}
	}
}

// drainQueue transmits every queued command, assigning sequence numbers in
// drain order so per-channel transmit order matches assignment order.
func (c *Conn) drainQueue() {
	for {
		it, ok := c.queue.pop()
		if !ok {
			return
		}
		c.mu.Lock()
		ch := c.sendChannelFor(it.channelID)
		seq := ch.nextSeq()
		wire := frame.Encode(frame.Frame{
			Type:      it.frameType,
			ChannelID: it.channelID,
			Seq:       seq,
			Payload:   it.payload,
		})
		var displaced *Pending
		if it.frameType == frame.TypeDataWithAck {
			displaced = ch.track(seq, wire, it.pending, time.Now())
		}
		c.mu.Unlock()
		if displaced != nil {
			observability.RecordDelivery("failed")
			log.Warn().Str("device", c.device).Uint8("seq", seq).
				Msg("sequence space exhausted, failing displaced frame")
			displaced.complete(fmt.Errorf("%w: sequence %d reassigned while in flight", ErrDeliveryFailed, seq))
		}
		c.transmit(wire, it.frameType)
	}
}

// retransmitDue rescans reliable channels: frames past their ack wait are
// retransmitted with their original sequence number until the attempt
// budget is spent, then reported failed without touching the connection.
func (c *Conn) retransmitDue() {
	now := time.Now()
	var resend [][]byte
	var failed []*Pending

	c.mu.Lock()
	for _, ch := range c.sendChs {
		for _, fl := range ch.dueForRetry(now, c.cfg.AckTimeout) {
			if fl.attempts >= c.cfg.maxAttempts() {
				if p := ch.giveUp(fl.seq); p != nil {
					failed = append(failed, p)
				}
				continue
			}
			fl.attempts++
			fl.lastSent = now
			resend = append(resend, fl.wire)
		}
	}
	c.mu.Unlock()

	for _, wire := range resend {
		observability.RecordRetransmit()
		c.transmit(wire, frame.TypeDataWithAck)
	}
	for _, p := range failed {
		observability.RecordDelivery("failed")
		log.Warn().Str("command", p.name).Int("attempts", c.cfg.maxAttempts()).
			Msg("delivery failed, giving up")
		p.complete(fmt.Errorf("%w: %s after %d attempts", ErrDeliveryFailed, p.name, c.cfg.maxAttempts()))
	}
}
