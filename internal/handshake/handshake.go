// Package handshake implements the port negotiation that precedes the UDP
// transport: a single JSON request/reply over a short-lived TCP connection
// to the device's advertised discovery port.
package handshake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

var (
	ErrInvalidRequest = errors.New("handshake: invalid request")
	ErrRefused        = errors.New("handshake: connection refused")
	ErrMalformedReply = errors.New("handshake: malformed reply")
)

// DefaultTimeout bounds the whole exchange when the caller passes none.
const DefaultTimeout = 5 * time.Second

// Request is the controller side of the exchange. d2c_port announces the
// local UDP port the device should send its frames to. The identity strings
// are free-form; devices record them but accept anything non-empty.
type Request struct {
	D2CPort        int    `json:"d2c_port"`
	ControllerType string `json:"controller_type"`
	ControllerName string `json:"controller_name"`

	// DeviceID optionally pins the exchange to one device serial; a device
	// whose serial differs refuses the connection.
	DeviceID string `json:"device_id,omitempty"`
}

func (r Request) Validate() error {
	if r.D2CPort <= 0 || r.D2CPort > 65535 {
		return fmt.Errorf("%w: d2c port %d", ErrInvalidRequest, r.D2CPort)
	}
	if strings.TrimSpace(r.ControllerType) == "" {
		return fmt.Errorf("%w: missing controller_type", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ControllerName) == "" {
		return fmt.Errorf("%w: missing controller_name", ErrInvalidRequest)
	}
	return nil
}

// Reply is the device's transport arbitration. A zero status accepts the
// connection and c2d_port is where outbound frames go. Devices append
// fields freely; unknown ones are ignored.
type Reply struct {
	Status  int `json:"status"`
	C2DPort int `json:"c2d_port"`

	// Stream arbitration, sent by camera products.
	FragmentSize    int `json:"arstream_fragment_size,omitempty"`
	FragmentMaximum int `json:"arstream_fragment_maximum_number,omitempty"`
	MaxAckInterval  int `json:"arstream_max_ack_interval,omitempty"`

	C2DUpdatePort int `json:"c2d_update_port,omitempty"`
	C2DUserPort   int `json:"c2d_user_port,omitempty"`
}

// Negotiate runs the exchange against addr (host:port). The timeout covers
// dialing, writing and reading; the connection never outlives the call.
func Negotiate(addr string, req Request, timeout time.Duration) (Reply, error) {
	if err := req.Validate(); err != nil {
		return Reply{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Reply{}, fmt.Errorf("handshake: dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("handshake: encode request: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return Reply{}, fmt.Errorf("handshake: send request: %w", err)
	}

	// Devices answer with a single datagram-sized write, NUL-padded on
	// some firmwares.
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return Reply{}, fmt.Errorf("handshake: read reply: %w", err)
	}
	return ParseReply(buf[:n])
}

// ParseReply decodes a device reply, ignoring trailing padding after the
// JSON document. A non-zero status is ErrRefused; the reply is still
// returned so callers can inspect the code.
func ParseReply(raw []byte) (Reply, error) {
	var rep Reply
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&rep); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if rep.Status != 0 {
		return rep, fmt.Errorf("%w: status %d", ErrRefused, rep.Status)
	}
	if rep.C2DPort <= 0 || rep.C2DPort > 65535 {
		return rep, fmt.Errorf("%w: c2d port %d", ErrMalformedReply, rep.C2DPort)
	}
	return rep, nil
}
