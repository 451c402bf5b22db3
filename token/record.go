package token

import "time"

// Record represents one issued session. The access secret doubles as the
// storage key; there is no secondary index from the refresh secret or the
// user ID, so per-user operations require a scan.
//
// A Record is immutable after creation except through retirement, which
// shortens both expirations to a near-future grace deadline instead of
// deleting the entry outright.
type Record struct {
	UserID            string `json:"user_id"`
	AccessSecret      string `json:"access_secret"`
	AccessExpiration  int64  `json:"access_expiration"`
	RefreshSecret     string `json:"refresh_secret"`
	RefreshExpiration int64  `json:"refresh_expiration"`

	// Retired marks a record that has been grace-expired by rotation or
	// explicit revocation. A retired record can still pass access checks
	// until the grace deadline but can never refresh again.
	Retired bool `json:"retired,omitempty"`
}

// AccessValid reports whether the record still grants access at the given
// instant.
func (r *Record) AccessValid(now time.Time) bool {
	return now.Unix() < r.AccessExpiration
}

// RefreshValid reports whether the record's refresh window is still open at
// the given instant.
func (r *Record) RefreshValid(now time.Time) bool {
	return now.Unix() < r.RefreshExpiration
}
