package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hatemosphere/campus-portal/internal/auth"
	"github.com/hatemosphere/campus-portal/internal/gziputil"
)

// Session is a stored browser session row.
type Session struct {
	ID        string
	Token     string
	Identity  *auth.Identity
	ExpiresAt time.Time // token expiry; zero when the token has no exp claim
	CreatedAt time.Time
	UpdatedAt time.Time
}

// maxIdentitySize caps an inflated identity blob.
const maxIdentitySize = 64 << 10

// encodeIdentity marshals id as gzip-compressed JSON. A nil identity is
// stored as an empty blob.
func encodeIdentity(id *auth.Identity) ([]byte, error) {
	if id == nil {
		return nil, nil
	}
	data, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("marshal identity: %w", err)
	}
	blob, err := gziputil.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("compress identity: %w", err)
	}
	return blob, nil
}

// decodeIdentity reverses encodeIdentity. Rows written as plain JSON are
// accepted too.
func decodeIdentity(blob []byte) (*auth.Identity, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	data := blob
	if gziputil.IsGzip(blob) {
		var err error
		if data, err = gziputil.Decompress(blob, maxIdentitySize); err != nil {
			return nil, fmt.Errorf("decompress identity: %w", err)
		}
	}
	var id auth.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	return &id, nil
}
