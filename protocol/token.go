package protocol

import (
	"bytes"
	"fmt"
	"slices"
)

// TokenHeader identifies the station that issued the current token instance.
// It is not signed: it always travels inside an authenticated TokenPass packet.
type TokenHeader struct {
	Sender    StationID
	Timestamp uint64
}

func (h TokenHeader) Encode(w *Writer) error {
	if err := h.Sender.Encode(w); err != nil {
		return err
	}
	w.WriteUint64(h.Timestamp)
	return nil
}

// FrameID identifies a frame by its author and the author's timestamp.
// IDs from one sender are strictly increasing.
type FrameID struct {
	Sender    StationID
	Timestamp uint64
}

// After reports whether id is a newer frame from the same sender than other.
func (id FrameID) After(other FrameID) bool {
	return id.Sender == other.Sender && id.Timestamp > other.Timestamp
}

func (id FrameID) String() string {
	return fmt.Sprintf("%s@%d", id.Sender, id.Timestamp)
}

func (id FrameID) Encode(w *Writer) error {
	if err := id.Sender.Encode(w); err != nil {
		return err
	}
	w.WriteUint64(id.Timestamp)
	return nil
}

func decodeFrameID(r *Reader) (FrameID, error) {
	sender, err := DecodeStationID(r)
	if err != nil {
		return FrameID{}, err
	}
	ts, err := r.ReadUint64()
	if err != nil {
		return FrameID{}, err
	}
	return FrameID{Sender: sender, Timestamp: ts}, nil
}

// BodyType tags a frame body on the wire.
type BodyType uint8

const (
	BodyEmpty BodyType = iota
	BodyData
	BodyAck
)

func (t BodyType) String() string {
	switch t {
	case BodyEmpty:
		return "empty"
	case BodyData:
		return "data"
	case BodyAck:
		return "ack"
	}
	return fmt.Sprintf("body(%d)", uint8(t))
}

// FrameBody is one of Empty, Data or AckData.
type FrameBody interface {
	BodyType() BodyType
	encodeBody(w *Writer) error
}

// Empty marks that a station held the token without sending anything.
type Empty struct{}

func (Empty) BodyType() BodyType         { return BodyEmpty }
func (Empty) encodeBody(w *Writer) error { return nil }

// Data carries an application payload. An empty Destination is a broadcast.
type Data struct {
	Destination StationID
	Payload     []byte
}

func (Data) BodyType() BodyType { return BodyData }

// IsBroadcast reports whether the frame is addressed to every station.
func (d Data) IsBroadcast() bool {
	return d.Destination == ""
}

// AddressedTo reports whether id should deliver this frame.
func (d Data) AddressedTo(id StationID) bool {
	return d.IsBroadcast() || d.Destination == id
}

func (d Data) encodeBody(w *Writer) error {
	if err := w.WriteString(string(d.Destination)); err != nil {
		return err
	}
	return w.WriteBytes(d.Payload)
}

// AckData acknowledges receipt of a unicast Data frame.
type AckData struct {
	Ref FrameID
}

func (AckData) BodyType() BodyType { return BodyAck }

func (a AckData) encodeBody(w *Writer) error {
	return a.Ref.Encode(w)
}

// Frame is one station's contribution to the token.
type Frame struct {
	ID   FrameID
	Body FrameBody
}

func (f Frame) Encode(w *Writer) error {
	if err := f.ID.Encode(w); err != nil {
		return err
	}
	if f.Body == nil {
		return fmt.Errorf("frame %s has no body", f.ID)
	}
	w.WriteUint8(uint8(f.Body.BodyType()))
	return f.Body.encodeBody(w)
}

func decodeFrame(r *Reader) (Frame, error) {
	id, err := decodeFrameID(r)
	if err != nil {
		return Frame{}, err
	}
	tag, err := r.ReadUint8()
	if err != nil {
		return Frame{}, err
	}

	f := Frame{ID: id}
	switch BodyType(tag) {
	case BodyEmpty:
		f.Body = Empty{}
	case BodyData:
		dest, err := r.ReadString()
		if err != nil {
			return Frame{}, err
		}
		var d Data
		if dest != "" {
			d.Destination, err = NewStationID(dest)
			if err != nil || string(d.Destination) != dest {
				return Frame{}, errMalformed("bad data destination")
			}
		}
		if d.Payload, err = r.ReadBytes(); err != nil {
			return Frame{}, err
		}
		f.Body = d
	case BodyAck:
		ref, err := decodeFrameID(r)
		if err != nil {
			return Frame{}, err
		}
		f.Body = AckData{Ref: ref}
	default:
		return Frame{}, errMalformed(fmt.Sprintf("unknown frame body tag %d", tag))
	}
	return f, nil
}

// Token is the circulating transmission right.
// Frames are ordered by append time.
type Token struct {
	Header TokenHeader
	Frames []Frame
}

// NewToken creates a token with no frames.
func NewToken(sender StationID, timestamp uint64) *Token {
	return &Token{Header: TokenHeader{Sender: sender, Timestamp: timestamp}}
}

// Append adds f, rejecting frames that are not newer than the sender's last frame.
func (t *Token) Append(f Frame) error {
	if last, ok := t.LastFrom(f.ID.Sender); ok && !f.ID.After(last) {
		return NewError(KindStaleOrReplayed,
			fmt.Sprintf("frame %s is not newer than %s", f.ID, last))
	}
	t.Frames = append(t.Frames, f)
	return nil
}

// LastFrom returns the id of the newest frame appended by sender.
func (t *Token) LastFrom(sender StationID) (FrameID, bool) {
	for i := len(t.Frames) - 1; i >= 0; i-- {
		if t.Frames[i].ID.Sender == sender {
			return t.Frames[i].ID, true
		}
	}
	return FrameID{}, false
}

// Validate checks that frame ids are strictly increasing per sender.
func (t *Token) Validate() error {
	last := make(map[StationID]uint64)
	for _, f := range t.Frames {
		if prev, ok := last[f.ID.Sender]; ok && f.ID.Timestamp <= prev {
			return NewError(KindStaleOrReplayed,
				fmt.Sprintf("frame %s out of order", f.ID))
		}
		last[f.ID.Sender] = f.ID.Timestamp
	}
	return nil
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	c := &Token{Header: t.Header}
	if t.Frames != nil {
		c.Frames = make([]Frame, len(t.Frames))
		for i, f := range t.Frames {
			if d, ok := f.Body.(Data); ok {
				d.Payload = bytes.Clone(d.Payload)
				f.Body = d
			}
			c.Frames[i] = f
		}
	}
	return c
}

// Prune drops the first n frames.
func (t *Token) Prune(n int) {
	if n <= 0 {
		return
	}
	if n >= len(t.Frames) {
		t.Frames = nil
		return
	}
	t.Frames = slices.Clone(t.Frames[n:])
}

// Encode writes [header][u32 frame count][frames...].
func (t *Token) Encode(w *Writer) error {
	if err := t.Header.Encode(w); err != nil {
		return err
	}
	w.WriteUint32(uint32(len(t.Frames)))
	for _, f := range t.Frames {
		if err := f.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// minFrameSize is the smallest possible encoded frame: a 1-byte id, timestamp and tag.
const minFrameSize = 2 + 1 + 8 + 1

// DecodeToken reads a token.
func DecodeToken(r *Reader) (*Token, error) {
	sender, err := DecodeStationID(r)
	if err != nil {
		return nil, err
	}
	ts, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(count)*minFrameSize > uint64(r.Remaining()) {
		return nil, errMalformed(fmt.Sprintf("frame count %d exceeds buffer", count))
	}

	t := NewToken(sender, ts)
	for i := uint32(0); i < count; i++ {
		f, err := decodeFrame(r)
		if err != nil {
			return nil, err
		}
		t.Frames = append(t.Frames, f)
	}
	return t, nil
}
