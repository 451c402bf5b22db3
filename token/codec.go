package token

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Encode serializes a record for storage. The JSON form is deliberate: the
// store's Lua scripts inspect records with cjson, so the wire format must be
// readable inside Redis as well as in Go.
func Encode(r *Record) ([]byte, error) {
	if r.UserID == "" {
		return nil, errors.New("record user id empty")
	}
	if r.AccessSecret == "" || r.RefreshSecret == "" {
		return nil, errors.New("record secrets empty")
	}
	if r.AccessExpiration <= 0 || r.RefreshExpiration <= 0 {
		return nil, errors.New("record expirations unset")
	}

	return json.Marshal(r)
}

// Decode deserializes a stored record. Failures signal data corruption, not
// absence, and wrap [ErrRecordCorrupt] so callers can keep them apart from
// ordinary not-found results.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if r.UserID == "" || r.AccessSecret == "" {
		return nil, fmt.Errorf("%w: missing identity fields", ErrRecordCorrupt)
	}
	if r.AccessExpiration <= 0 || r.RefreshExpiration <= 0 {
		return nil, fmt.Errorf("%w: missing expirations", ErrRecordCorrupt)
	}
	return &r, nil
}
