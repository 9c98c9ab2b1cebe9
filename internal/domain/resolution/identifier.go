package resolution

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// idHashLength is the number of hex characters kept from the digest (64 bits)
const idHashLength = 16

// GenerateID returns the stable identifier of an item within one scope and deal.
// The result is a pure function of its inputs; the type tag prefix makes the
// record type recoverable from the id alone.
func GenerateID(recordType RecordType, name string, scope OwnershipScope, dealID uuid.UUID) string {
	return IDForNormalized(recordType, Normalize(name), scope, dealID)
}

// IDForNormalized is GenerateID for a name that is already normalized
func IDForNormalized(recordType RecordType, normalized string, scope OwnershipScope, dealID uuid.UUID) string {
	key := strings.Join([]string{
		string(recordType),
		normalized,
		string(scope),
		dealID.String(),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return recordType.Tag() + "-" + strings.ToUpper(hex.EncodeToString(sum[:])[:idHashLength])
}
