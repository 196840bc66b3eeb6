package idgen

import "github.com/google/uuid"

// UUIDGenerator is the opt-in, larger-keyspace identifier generator
// mentioned in spec.md §9 open question 4 ("implementers may extend to a
// longer identifier without changing the on-disk format"). Ids remain
// length-prefixed strings in the codec, so swapping generators never
// touches the wire format.
type UUIDGenerator struct{}

// NewUUIDGenerator returns a Generator that produces hyphenated UUIDv4
// strings instead of the default 6-character alphanumeric id.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate returns a new random UUID string.
func (g *UUIDGenerator) Generate() string {
	return uuid.NewString()
}
