package protocol

import (
	"fmt"

	"github.com/flashbots/tokenring/crypto"
)

// PacketHeader is the signed part of every packet.
// ContentDigest binds the unsigned content to the header signature.
type PacketHeader struct {
	Source        StationID
	Timestamp     uint64
	ContentDigest crypto.Digest
}

func (h PacketHeader) Encode(w *Writer) error {
	if err := h.Source.Encode(w); err != nil {
		return err
	}
	w.WriteUint64(h.Timestamp)
	w.WriteFixed(h.ContentDigest[:])
	return nil
}

// DecodePacketHeader reads a header value.
func DecodePacketHeader(r *Reader) (PacketHeader, error) {
	var h PacketHeader
	var err error
	if h.Source, err = DecodeStationID(r); err != nil {
		return h, err
	}
	if h.Timestamp, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if err = r.ReadFixed(h.ContentDigest[:]); err != nil {
		return h, err
	}
	return h, nil
}

// ContentType tags packet content on the wire.
type ContentType uint8

const (
	ContentJoin ContentType = iota
	ContentJoinReply
	ContentToken
	ContentLeave
)

func (t ContentType) String() string {
	switch t {
	case ContentJoin:
		return "join"
	case ContentJoinReply:
		return "join-reply"
	case ContentToken:
		return "token"
	case ContentLeave:
		return "leave"
	}
	return fmt.Sprintf("content(%d)", uint8(t))
}

// Content is one of Join, JoinReply, TokenPass or Leave.
type Content interface {
	Encodable
	Type() ContentType
}

// Join requests admission to the ring.
type Join struct {
	// Address is the link address the coordinator and ring neighbors use to reach the joiner.
	Address string
	// Proof is crypto.JoinProof over the ring password, the source id and the header timestamp.
	Proof crypto.Digest
}

func (Join) Type() ContentType { return ContentJoin }

func (j Join) Encode(w *Writer) error {
	if err := w.WriteString(j.Address); err != nil {
		return err
	}
	w.WriteFixed(j.Proof[:])
	return nil
}

// JoinResult is the outcome of a join request.
type JoinResult uint8

const (
	JoinAccepted JoinResult = iota
	JoinDenied
)

// Neighbor describes a ring neighbor as resolved by the coordinator.
type Neighbor struct {
	ID        StationID
	PublicKey crypto.PublicKey
	Address   string
}

func (n Neighbor) Encode(w *Writer) error {
	if err := n.ID.Encode(w); err != nil {
		return err
	}
	w.WriteFixed(n.PublicKey[:])
	return w.WriteString(n.Address)
}

func decodeNeighbor(r *Reader) (Neighbor, error) {
	var n Neighbor
	var err error
	if n.ID, err = DecodeStationID(r); err != nil {
		return n, err
	}
	if err = r.ReadFixed(n.PublicKey[:]); err != nil {
		return n, err
	}
	if n.Address, err = r.ReadString(); err != nil {
		return n, err
	}
	return n, nil
}

// JoinReply answers a Join. The coordinator also sends unsolicited accepted
// replies to members whose neighbors changed.
type JoinReply struct {
	Result JoinResult
	// Reason explains a denial.
	Reason string
	// Position is the member's index in the ring; the coordinator is 0.
	Position    uint32
	RingSize    uint32
	Predecessor Neighbor
	Successor   Neighbor
}

func (JoinReply) Type() ContentType { return ContentJoinReply }

func (jr JoinReply) Encode(w *Writer) error {
	w.WriteUint8(uint8(jr.Result))
	switch jr.Result {
	case JoinAccepted:
		w.WriteUint32(jr.Position)
		w.WriteUint32(jr.RingSize)
		if err := jr.Predecessor.Encode(w); err != nil {
			return err
		}
		return jr.Successor.Encode(w)
	case JoinDenied:
		return w.WriteString(jr.Reason)
	}
	return fmt.Errorf("unknown join result %d", jr.Result)
}

// TokenPass forwards the token to the next station.
type TokenPass struct {
	Token *Token
}

func (TokenPass) Type() ContentType { return ContentToken }

func (tp TokenPass) Encode(w *Writer) error {
	if tp.Token == nil {
		return fmt.Errorf("token pass without token")
	}
	return tp.Token.Encode(w)
}

// Leave announces voluntary departure.
type Leave struct{}

func (Leave) Type() ContentType      { return ContentLeave }
func (Leave) Encode(w *Writer) error { return nil }

func encodeContent(c Content) ([]byte, error) {
	w := NewWriter()
	w.WriteUint8(uint8(c.Type()))
	if err := c.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func decodeContent(r *Reader) (Content, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}

	switch ContentType(tag) {
	case ContentJoin:
		var j Join
		if j.Address, err = r.ReadString(); err != nil {
			return nil, err
		}
		if err = r.ReadFixed(j.Proof[:]); err != nil {
			return nil, err
		}
		return j, nil

	case ContentJoinReply:
		res, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		jr := JoinReply{Result: JoinResult(res)}
		switch jr.Result {
		case JoinAccepted:
			if jr.Position, err = r.ReadUint32(); err != nil {
				return nil, err
			}
			if jr.RingSize, err = r.ReadUint32(); err != nil {
				return nil, err
			}
			if jr.Predecessor, err = decodeNeighbor(r); err != nil {
				return nil, err
			}
			if jr.Successor, err = decodeNeighbor(r); err != nil {
				return nil, err
			}
		case JoinDenied:
			if jr.Reason, err = r.ReadString(); err != nil {
				return nil, err
			}
		default:
			return nil, errMalformed(fmt.Sprintf("unknown join result %d", res))
		}
		return jr, nil

	case ContentToken:
		t, err := DecodeToken(r)
		if err != nil {
			return nil, err
		}
		return TokenPass{Token: t}, nil

	case ContentLeave:
		return Leave{}, nil
	}
	return nil, errMalformed(fmt.Sprintf("unknown content tag %d", tag))
}

// Packet is the unit exchanged between stations.
type Packet struct {
	Header  *Signed[PacketHeader]
	Content Content

	// contentBytes is the exact tagged content encoding the digest covers.
	contentBytes []byte
}

// NewPacket signs a header for content at the moment of transmission.
func NewPacket(kp *crypto.KeyPair, source StationID, timestamp uint64, content Content) (*Packet, error) {
	contentBytes, err := encodeContent(content)
	if err != nil {
		return nil, fmt.Errorf("encode %s content: %w", content.Type(), err)
	}

	header, err := NewSigned(kp, PacketHeader{
		Source:        source,
		Timestamp:     timestamp,
		ContentDigest: crypto.ContentDigest(contentBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("sign header: %w", err)
	}

	return &Packet{Header: header, Content: content, contentBytes: contentBytes}, nil
}

// Source returns the unverified source id.
func (p *Packet) Source() StationID {
	return p.Header.UnsafeValue().Source
}

// Verify checks the header signature and the content digest.
func (p *Packet) Verify() error {
	if !p.Header.Verify() {
		return NewError(KindSignatureInvalid, "header signature not valid")
	}
	if crypto.ContentDigest(p.contentBytes) != p.Header.UnsafeValue().ContentDigest {
		return NewError(KindSignatureInvalid, "content digest mismatch")
	}
	return nil
}

// Encode returns [public key][signature][header][content tag][content].
func (p *Packet) Encode() ([]byte, error) {
	w := NewWriter()
	if err := p.Header.Encode(w); err != nil {
		return nil, err
	}
	w.WriteFixed(p.contentBytes)
	return w.Bytes(), nil
}

// DecodePacket parses a packet. It does not verify signatures.
func DecodePacket(data []byte) (*Packet, error) {
	r := NewReader(data)
	header, err := DecodeSigned(r, DecodePacketHeader)
	if err != nil {
		return nil, err
	}

	start := r.off
	content, err := decodeContent(r)
	if err != nil {
		return nil, err
	}
	contentBytes := append([]byte(nil), r.consumed(start)...)
	if err := r.Done(); err != nil {
		return nil, err
	}

	return &Packet{Header: header, Content: content, contentBytes: contentBytes}, nil
}
