package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRecordNotFound is returned when no record exists for an access secret.
// Absence is not an infrastructure fault: it means "invalid or expired".
var ErrRecordNotFound = errors.New("token record not found")

// ErrRecordCorrupt is returned when a stored record cannot be decoded.
var ErrRecordCorrupt = errors.New("token record corrupt")

// ErrStoreUnavailable is returned when Redis cannot be reached or misbehaves.
var ErrStoreUnavailable = errors.New("token store unavailable")

// ErrRefreshMismatch is returned when the presented refresh secret does not
// match the stored one.
var ErrRefreshMismatch = errors.New("refresh secret mismatch")

// ErrRefreshExpired is returned when the record's refresh window has already
// elapsed, which callers treat as the replay/theft signal.
var ErrRefreshExpired = errors.New("refresh window elapsed")

// ErrRecordRetired is returned when rotation is attempted on a record that a
// previous rotation or revocation already grace-expired.
var ErrRecordRetired = errors.New("token record retired")

const (
	keyPrefix   = "token:"
	registryKey = "token_registry"

	scanBatch = 1000
)

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusInvalidBlob int64 = 4
	rotateStatusRetired     int64 = 5
)

// rotateScript is the compare-and-retire step of refresh rotation. It runs
// atomically so that two concurrent refreshes of the same record produce
// exactly one winner: the first rewrites both expirations to the grace
// deadline and marks the record retired; the second fails the retired check.
//
// The secret comparison comes first. A mismatch proves nothing about
// possession of a once-valid credential, so it must stay a plain mismatch
// even when the refresh window has already elapsed; only a correct secret
// presented after its window is reported as expired, the caller's theft
// signal.
const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" or type(rec.refresh_secret) ~= "string" then
  return {4}
end
if rec.refresh_secret ~= ARGV[1] then
  return {2}
end
if tonumber(rec.refresh_expiration) <= tonumber(ARGV[3]) then
  return {1}
end
if rec.retired then
  return {5}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return {1}
end
rec.access_expiration = tonumber(ARGV[2])
rec.refresh_expiration = tonumber(ARGV[2])
rec.retired = true
local updated = cjson.encode(rec)
redis.call("SET", KEYS[1], updated, "PX", ttl)
return {3, updated}
`

var rotateLua = redis.NewScript(rotateScript)

// retireScript grace-expires a record unconditionally, preserving the
// remaining TTL so the entry still evicts on its original schedule.
const retireScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" then
  return {4}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return {0}
end
rec.access_expiration = tonumber(ARGV[1])
rec.refresh_expiration = tonumber(ARGV[1])
rec.retired = true
local updated = cjson.encode(rec)
redis.call("SET", KEYS[1], updated, "PX", ttl)
return {3, updated}
`

var retireLua = redis.NewScript(retireScript)

// Store is the Redis-backed persistence layer for token records. It owns the
// keyspace layout, the registry set, and the atomic rotation scripts.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a token [Store] backed by the given Redis client. prefix
// namespaces every key the store touches; it may be empty.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  rdb,
		prefix: prefix,
	}
}

func (s *Store) key(accessSecret string) string {
	return s.prefix + keyPrefix + accessSecret
}

func (s *Store) registry() string {
	return s.prefix + registryKey
}

// Put serializes the record and writes it under its access-secret key with
// the given TTL, registering the key in the same MULTI/EXEC transaction so a
// record can never land in the store without its registry entry.
func (s *Store) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	key := s.key(rec.AccessSecret)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.SAdd(ctx, s.registry(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetByAccessSecret returns the record stored for the given access secret.
// Absent or evicted entries yield [ErrRecordNotFound].
func (s *Store) GetByAccessSecret(ctx context.Context, accessSecret string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(accessSecret)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return Decode(data)
}

// Delete removes the record for the given access secret. It does not prune
// the registry; the entry becomes a dangling reference until the next Clean.
func (s *Store) Delete(ctx context.Context, accessSecret string) error {
	if err := s.redis.Del(ctx, s.key(accessSecret)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RegistryKeys returns every key currently tracked by the registry, dangling
// references included.
func (s *Store) RegistryKeys(ctx context.Context) ([]string, error) {
	keys, err := s.redis.SMembers(ctx, s.registry()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return keys, nil
}

// ScanRegistry returns every record reachable through the registry plus the
// registry entries whose underlying key is gone or undecodable. Used by Clean.
func (s *Store) ScanRegistry(ctx context.Context) ([]*Record, []string, error) {
	keys, err := s.RegistryKeys(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(keys) == 0 {
		return []*Record{}, nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(keys))
	var stale []string
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, keys[i])
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			stale = append(stale, keys[i])
			continue
		}
		records = append(records, rec)
	}

	return records, stale, nil
}

// ScanPrefix returns every live record in the store regardless of registry
// membership, together with the keys of undecodable entries. Bulk revocation
// uses this path on purpose: a record the registry lost track of must still
// be found.
func (s *Store) ScanPrefix(ctx context.Context) ([]*Record, []string, error) {
	pattern := s.prefix + keyPrefix + "*"

	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return []*Record{}, nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(keys))
	var corrupt []string
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			// Evicted between SCAN and GET.
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			corrupt = append(corrupt, keys[i])
			continue
		}
		records = append(records, rec)
	}

	return records, corrupt, nil
}

// CleanResult reports what a Clean pass removed.
type CleanResult struct {
	// Expired counts records deleted because both expirations had passed.
	Expired int
	// Dangling counts registry entries pruned because the underlying key was
	// already gone or undecodable.
	Dangling int
}

// Clean walks the registry and removes records whose both expirations are in
// the past, pruning their registry entries along with any dangling ones.
func (s *Store) Clean(ctx context.Context, now time.Time) (CleanResult, error) {
	var result CleanResult

	records, stale, err := s.ScanRegistry(ctx)
	if err != nil {
		return result, err
	}

	var deadKeys []string
	for _, rec := range records {
		if !rec.AccessValid(now) && !rec.RefreshValid(now) {
			deadKeys = append(deadKeys, s.key(rec.AccessSecret))
		}
	}
	if len(deadKeys) == 0 && len(stale) == 0 {
		return result, nil
	}

	prune := append(append([]string{}, deadKeys...), stale...)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(deadKeys) > 0 {
			pipe.Del(ctx, deadKeys...)
		}
		pipe.SRem(ctx, s.registry(), prune)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result.Expired = len(deadKeys)
	result.Dangling = len(stale)
	return result, nil
}

// DeleteAllForUser deletes every currently stored record owned by the given
// user, scanning the keyspace directly rather than the registry. Undecodable
// entries found along the way are deleted too: a record that cannot be read
// can never authenticate anyone, and revocation is the safe moment to shed it.
//
// The scan-then-delete sequence is not atomic. A record issued for the same
// user after the scan completes survives this call; callers must treat it as
// best-effort containment, not an atomic barrier.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	records, corrupt, err := s.ScanPrefix(ctx)
	if err != nil {
		return 0, err
	}

	keys := append([]string{}, corrupt...)
	for _, rec := range records {
		if rec.UserID == userID {
			keys = append(keys, s.key(rec.AccessSecret))
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return len(keys) - len(corrupt), nil
}

// RotateWithGrace atomically verifies the presented refresh secret against
// the stored record and, on match, grace-expires the record so it can never
// refresh again. Returns the retired record on success.
//
// Failure mapping: [ErrRecordNotFound] when no entry exists,
// [ErrRefreshMismatch] when the secret does not match (even on a record
// whose window has already elapsed), [ErrRefreshExpired] when the correct
// secret arrives after its refresh window (the caller's theft signal),
// [ErrRecordRetired] when a concurrent rotation already won, and
// [ErrRecordCorrupt] when the stored blob is undecodable.
func (s *Store) RotateWithGrace(
	ctx context.Context,
	accessSecret, providedRefreshSecret string,
	graceDeadline, now time.Time,
) (*Record, error) {
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(accessSecret)},
		providedRefreshSecret,
		graceDeadline.Unix(),
		now.Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return s.decodeScriptResult(result)
}

// Retire grace-expires the record for the given access secret without any
// precondition, preserving the remaining TTL. Used by explicit revocation.
func (s *Store) Retire(ctx context.Context, accessSecret string, graceDeadline time.Time) (*Record, error) {
	result, err := retireLua.Run(
		ctx,
		s.redis,
		[]string{s.key(accessSecret)},
		graceDeadline.Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return s.decodeScriptResult(result)
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) decodeScriptResult(result interface{}) (*Record, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid script response", ErrStoreUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid script status", ErrStoreUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrRecordNotFound
	case rotateStatusExpired:
		return nil, ErrRefreshExpired
	case rotateStatusMismatch:
		return nil, ErrRefreshMismatch
	case rotateStatusRetired:
		return nil, ErrRecordRetired
	case rotateStatusInvalidBlob:
		return nil, ErrRecordCorrupt
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated record payload", ErrStoreUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid updated record payload", ErrStoreUnavailable)
		}

		return Decode(blob)
	default:
		return nil, fmt.Errorf("%w: unknown script status", ErrStoreUnavailable)
	}
}
