package message

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/ibrb-io/aorta/errors"
	"github.com/google/uuid"
)

// DeliveryTag identifies one send attempt. It is minted locally (never by
// the transport library) because independent links sharing one spool must
// never collide, and a library-assigned tag only guarantees uniqueness
// within a single link.
type DeliveryTag [16]byte

// NewDeliveryTag mints 16 random bytes.
func NewDeliveryTag() (DeliveryTag, error) {
	var t DeliveryTag
	if _, err := rand.Read(t[:]); err != nil {
		return t, errors.Wrap(err, "generate delivery tag")
	}
	return t, nil
}

// String hex-encodes the tag, the form used for on-disk file names and log
// fields.
func (t DeliveryTag) String() string { return hex.EncodeToString(t[:]) }

// ParseDeliveryTag decodes a hex-encoded tag, as read back from a delivery
// record file name.
func ParseDeliveryTag(s string) (DeliveryTag, error) {
	var t DeliveryTag
	b, err := hex.DecodeString(s)
	if err != nil {
		return t, errors.Wrap(err, "decode delivery tag")
	}
	if len(b) != len(t) {
		return t, errors.New("invalid delivery tag length")
	}
	copy(t[:], b)
	return t, nil
}

// ID is a 16-byte identifier used for both message and correlation IDs.
type ID [16]byte

// NewID generates a new random identifier using UUIDv4
// (github.com/google/uuid).
func NewID() ID {
	var id ID
	copy(id[:], uuid.New()[:])
	return id
}

// String hex-encodes the identifier for the wire and for file names.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id was never assigned.
func (id ID) IsZero() bool { return id == ID{} }

// ParseID decodes a hex-encoded identifier.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "decode id")
	}
	if len(b) != len(id) {
		return id, errors.New("invalid id length")
	}
	copy(id[:], b)
	return id, nil
}
