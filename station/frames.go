package station

import (
	"fmt"

	"github.com/flashbots/tokenring/protocol"
)

// DeliveryKind distinguishes application data from acknowledgements.
type DeliveryKind string

const (
	DeliveryData DeliveryKind = "data"
	DeliveryAck  DeliveryKind = "ack"
)

// Delivery is a frame handed to the application.
type Delivery struct {
	Kind  DeliveryKind       `json:"kind"`
	Frame protocol.FrameID   `json:"frame"`
	From  protocol.StationID `json:"from"`
	// Destination is empty for broadcasts.
	Destination protocol.StationID `json:"destination,omitempty"`
	Payload     []byte             `json:"payload,omitempty"`
	// Ref is the acknowledged frame, for acks.
	Ref protocol.FrameID `json:"ref,omitempty"`
}

// outbox holds frames waiting for this station's next hold.
type outbox struct {
	limit   int
	pending []protocol.Data
	acks    []protocol.AckData
}

func (o *outbox) pushData(d protocol.Data) error {
	if len(o.pending) >= o.limit {
		return fmt.Errorf("outbox full (%d frames)", o.limit)
	}
	o.pending = append(o.pending, d)
	return nil
}

func (o *outbox) pushAck(a protocol.AckData) {
	o.acks = append(o.acks, a)
}

// next pops the body for the next hold: data first, then acks.
func (o *outbox) next(markPass bool) protocol.FrameBody {
	if len(o.pending) > 0 {
		d := o.pending[0]
		o.pending = o.pending[1:]
		return d
	}
	if len(o.acks) > 0 {
		a := o.acks[0]
		o.acks = o.acks[1:]
		return a
	}
	if markPass {
		return protocol.Empty{}
	}
	return nil
}

func (o *outbox) len() int {
	return len(o.pending) + len(o.acks)
}

// receiveFrames delivers every not yet seen frame addressed to this station and
// queues acks for unicast data.
func (s *Station) receiveFrames(t *protocol.Token) {
	for _, f := range t.Frames {
		if f.ID.Sender == s.id {
			continue
		}
		if last, ok := s.delivered[f.ID.Sender]; ok && f.ID.Timestamp <= last {
			continue
		}
		s.delivered[f.ID.Sender] = f.ID.Timestamp

		switch body := f.Body.(type) {
		case protocol.Data:
			if !body.AddressedTo(s.id) {
				continue
			}
			s.deliver(Delivery{
				Kind:        DeliveryData,
				Frame:       f.ID,
				From:        f.ID.Sender,
				Destination: body.Destination,
				Payload:     body.Payload,
			})
			if !body.IsBroadcast() {
				s.outbox.pushAck(protocol.AckData{Ref: f.ID})
			}
		case protocol.AckData:
			if body.Ref.Sender != s.id {
				continue
			}
			s.deliver(Delivery{Kind: DeliveryAck, Frame: f.ID, From: f.ID.Sender, Ref: body.Ref})
		}
	}
}

func (s *Station) deliver(d Delivery) {
	select {
	case s.deliveries <- d:
	default:
		s.log.Warn("delivery queue full, dropping frame", "frame", d.Frame.String(), "kind", d.Kind)
	}
}

// appendFrame adds at most one frame from the outbox to t.
func (s *Station) appendFrame(t *protocol.Token) error {
	body := s.outbox.next(s.cfg.Ring.MarkPass)
	if body == nil {
		return nil
	}
	f := protocol.Frame{
		ID:   protocol.FrameID{Sender: s.id, Timestamp: s.clock.Now()},
		Body: body,
	}
	if err := t.Append(f); err != nil {
		return err
	}
	s.metrics.FramesAppended.WithLabelValues(body.BodyType().String()).Inc()
	return nil
}
