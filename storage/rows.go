package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// SessionRow is the value stored under a token in SessionBucket. Data is the
// opaque serialized payload.
type SessionRow struct {
	Modified time.Time `json:"modified"`
	Data     []byte    `json:"data"`
}

func EncodeSessionRow(row SessionRow) ([]byte, error) {
	return json.Marshal(row)
}

func DecodeSessionRow(raw []byte) (SessionRow, error) {
	var row SessionRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return SessionRow{}, fmt.Errorf("decoding session row: %w", err)
	}
	return row, nil
}

// ActivityKey builds the SessionActivityBucket key for a session: the
// big-endian last-activity time in nanoseconds followed by the token, so a
// cursor walks sessions oldest first.
func ActivityKey(modified time.Time, token string) []byte {
	k := make([]byte, 8+len(token))
	binary.BigEndian.PutUint64(k, uint64(modified.UnixNano()))
	copy(k[8:], token)
	return k
}

// SplitActivityKey is the inverse of ActivityKey.
func SplitActivityKey(k []byte) (time.Time, string, error) {
	if len(k) < 8 {
		return time.Time{}, "", fmt.Errorf("activity key too short: %d bytes", len(k))
	}
	ns := int64(binary.BigEndian.Uint64(k[:8]))
	return time.Unix(0, ns), string(k[8:]), nil
}
