package network

import (
	"errors"
	"fmt"
)

var ErrInvalidPlan = errors.New("network: invalid channel plan")

// Channel well-known ids. Each side pings on channel 0 and answers on 1;
// acknowledgements for channel N travel on N+128.
const (
	PingChannel = 0
	PongChannel = 1

	// AckChannelFlag marks the high half of the channel space, reserved for
	// ACK frames answering the corresponding low channel.
	AckChannelFlag = 0x80
)

// Plan assigns outbound channels per delivery class and lists the inbound
// channels the device sends commands on. A zero id means the class is
// unavailable on this product.
type Plan struct {
	Ack        uint8
	BestEffort uint8
	LowLatency uint8
	Command    []uint8
}

// DefaultPlan is the channel arbitration the supported products use.
func DefaultPlan() Plan {
	return Plan{
		Ack:        11,
		BestEffort: 10,
		LowLatency: 12,
		Command:    []uint8{127, 126},
	}
}

func (p Plan) Validate() error {
	if p.Ack == 0 {
		return fmt.Errorf("%w: missing acknowledged channel", ErrInvalidPlan)
	}
	if p.BestEffort == 0 {
		return fmt.Errorf("%w: missing best-effort channel", ErrInvalidPlan)
	}
	for _, id := range []uint8{p.Ack, p.BestEffort, p.LowLatency} {
		if id == 0 {
			continue
		}
		if id >= AckChannelFlag {
			return fmt.Errorf("%w: outbound channel %d collides with the ack range", ErrInvalidPlan, id)
		}
		if id == PongChannel {
			return fmt.Errorf("%w: outbound channel %d is reserved for pongs", ErrInvalidPlan, id)
		}
	}
	if len(p.Command) == 0 {
		return fmt.Errorf("%w: no inbound command channels", ErrInvalidPlan)
	}
	for _, id := range p.Command {
		if id == PingChannel || id == PongChannel {
			return fmt.Errorf("%w: inbound command channel %d is reserved", ErrInvalidPlan, id)
		}
		if id >= AckChannelFlag {
			return fmt.Errorf("%w: inbound command channel %d collides with the ack range", ErrInvalidPlan, id)
		}
	}
	return nil
}
