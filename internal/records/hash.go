package records

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/spaolacci/murmur3"
)

// ContentHash returns the 128-bit murmur3 hash of content as 32 hex
// characters. It is the value stored in IndexCollabRecord.ContentHash and is
// used to skip re-indexing unchanged documents.
func ContentHash(content []byte) string {
	h1, h2 := murmur3.Sum128(content)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h1)
	binary.BigEndian.PutUint64(buf[8:], h2)
	return hex.EncodeToString(buf[:])
}

// NewIndexCollabRecord builds the index record for a document's content.
func NewIndexCollabRecord(oid, workspaceID string, content []byte) IndexCollabRecord {
	return IndexCollabRecord{
		OID:         oid,
		WorkspaceID: workspaceID,
		ContentHash: ContentHash(content),
	}
}

// NeedsReindex reports whether content differs from what rec was built from.
func (r IndexCollabRecord) NeedsReindex(content []byte) bool {
	return r.ContentHash != ContentHash(content)
}
