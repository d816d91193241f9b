package protocol

import (
	"fmt"
	"strings"
)

// MaxStationIDLength bounds the length of a station name.
const MaxStationIDLength = 64

// StationID names a station. IDs are case-insensitive and stored lower case.
type StationID string

// NewStationID normalizes and validates a station name.
func NewStationID(name string) (StationID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) == 0 || len(name) > MaxStationIDLength {
		return "", fmt.Errorf("station id must be 1..%d bytes, got %d", MaxStationIDLength, len(name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '/' {
			return "", fmt.Errorf("station id %q contains invalid byte 0x%02x", name, c)
		}
	}
	return StationID(name), nil
}

// MustStationID is NewStationID for constants and tests.
func MustStationID(name string) StationID {
	id, err := NewStationID(name)
	if err != nil {
		panic(err)
	}
	return id
}

// String formats the id as /name/.
func (id StationID) String() string {
	return "/" + string(id) + "/"
}

// Encode writes the id.
func (id StationID) Encode(w *Writer) error {
	return w.WriteString(string(id))
}

// DecodeStationID reads and validates an id.
func DecodeStationID(r *Reader) (StationID, error) {
	s, err := r.ReadString()
	if err != nil {
		return "", err
	}
	id, err := NewStationID(s)
	if err != nil {
		return "", WrapError(KindMalformedPacket, "bad station id", err)
	}
	if string(id) != s {
		return "", errMalformed("station id not canonical")
	}
	return id, nil
}
