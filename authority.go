package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/arcticfox/tokenauth/internal"
	"github.com/arcticfox/tokenauth/jwt"
	"github.com/arcticfox/tokenauth/token"
)

// errAccessExpired is internal only; externally it is one more cause folded
// into ErrUnauthenticated.
var errAccessExpired = errors.New("access window elapsed")

// Authority implements issuance, verification, rotation, and revocation of
// access/refresh token pairs. Construct through [Builder.Build]; methods are
// safe for concurrent use afterwards.
type Authority struct {
	config       Config
	store        *token.Store
	jwtManager   *jwt.Manager
	userProvider UserProvider
	clock        Clock
	logger       *slog.Logger
	audit        *auditDispatcher
	metrics      *Metrics
}

// Issue creates a fresh token pair for the given user. Each issuance also
// runs an opportunistic cleanup pass over the registry, which is the only
// place cleanup happens — there is no background job.
func (a *Authority) Issue(ctx context.Context, userID string) (TokenPair, error) {
	if a == nil {
		return TokenPair{}, ErrAuthorityNotReady
	}
	if userID == "" {
		return TokenPair{}, ErrUserNotFound
	}

	now := a.clock()
	a.cleanOpportunistic(ctx, now)

	rec, err := a.issueRecord(ctx, userID, now)
	if err != nil {
		return TokenPair{}, err
	}

	access, err := a.jwtManager.WrapAccess(rec.AccessSecret, now)
	if err != nil {
		return TokenPair{}, err
	}

	a.metrics.Inc(MetricTokenIssued)
	a.emit(ctx, AuditEvent{
		EventType: AuditTokenIssued,
		UserID:    userID,
		Success:   true,
	})

	return TokenPair{AccessToken: access, RefreshToken: rec.RefreshSecret}, nil
}

// VerifyAccess unwraps the signed handle, looks up the backing record, and
// checks the access window. Every authentication failure collapses into
// [ErrUnauthenticated]; infrastructure faults surface as
// [ErrStoreUnavailable] and never grant access.
func (a *Authority) VerifyAccess(ctx context.Context, accessJWT string) (*Identity, error) {
	if a == nil {
		return nil, ErrAuthorityNotReady
	}

	rec, err := a.lookupByHandle(ctx, accessJWT)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, a.verifyFailure(ctx, "", err)
	}

	if !rec.AccessValid(a.clock()) {
		return nil, a.verifyFailure(ctx, rec.UserID, errAccessExpired)
	}

	identity, err := a.userProvider.ResolveUser(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, a.verifyFailure(ctx, rec.UserID, err)
		}
		return nil, err
	}

	a.metrics.Inc(MetricVerifySuccess)
	return identity, nil
}

// Refresh exchanges an unexpired pair for a new one. The old record is
// atomically grace-expired before the successor is issued, so of two
// concurrent refreshes of the same record exactly one wins.
//
// A refresh secret presented after its window has lapsed is treated as
// evidence of credential leakage: every session the user holds is revoked
// before the uniform rejection is returned.
func (a *Authority) Refresh(ctx context.Context, accessJWT, refreshSecret string) (TokenPair, error) {
	if a == nil {
		return TokenPair{}, ErrAuthorityNotReady
	}
	if refreshSecret == "" {
		a.metrics.Inc(MetricRefreshFailure)
		return TokenPair{}, ErrUnauthenticated
	}

	rec, err := a.lookupByHandle(ctx, accessJWT)
	if err != nil {
		a.metrics.Inc(MetricRefreshFailure)
		if errors.Is(err, ErrStoreUnavailable) {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrUnauthenticated
	}

	now := a.clock()
	retired, err := a.store.RotateWithGrace(
		ctx,
		rec.AccessSecret,
		refreshSecret,
		now.Add(a.config.ExpireGrace),
		now,
	)
	if err != nil {
		return TokenPair{}, a.refreshFailure(ctx, rec.UserID, err)
	}

	next, err := a.issueRecord(ctx, retired.UserID, now)
	if err != nil {
		return TokenPair{}, err
	}

	access, err := a.jwtManager.WrapAccess(next.AccessSecret, now)
	if err != nil {
		return TokenPair{}, err
	}

	a.metrics.Inc(MetricRefreshSuccess)
	a.emit(ctx, AuditEvent{
		EventType: AuditTokenRotated,
		UserID:    retired.UserID,
		Success:   true,
	})

	return TokenPair{AccessToken: access, RefreshToken: next.RefreshSecret}, nil
}

// RevokeCurrent grace-expires the session behind the presented handle. The
// record is shortened, not deleted, so a request already in flight with the
// same token finishes inside the grace window.
func (a *Authority) RevokeCurrent(ctx context.Context, accessJWT string) error {
	if a == nil {
		return ErrAuthorityNotReady
	}

	secret, err := a.jwtManager.UnwrapAccess(accessJWT)
	if err != nil {
		return a.verifyFailure(ctx, "", err)
	}
	if err := internal.ValidateOpaqueSecret(secret); err != nil {
		return a.verifyFailure(ctx, "", err)
	}

	now := a.clock()
	rec, err := a.store.Retire(ctx, secret, now.Add(a.config.ExpireGrace))
	if err != nil {
		if errors.Is(err, token.ErrRecordNotFound) {
			return a.verifyFailure(ctx, "", err)
		}
		return a.storeFault(ctx, "retire", err)
	}

	a.metrics.Inc(MetricTokenRevoked)
	a.emit(ctx, AuditEvent{
		EventType: AuditTokenRevoked,
		UserID:    rec.UserID,
		Success:   true,
	})

	return nil
}

// RevokeAll deletes every currently stored record for the user, scanning the
// keyspace directly so that records the registry lost track of are still
// caught. Best-effort containment: a record issued for the same user after
// the scan completes survives.
func (a *Authority) RevokeAll(ctx context.Context, userID string) error {
	if a == nil {
		return ErrAuthorityNotReady
	}

	deleted, err := a.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return a.storeFault(ctx, "revoke all", err)
	}

	a.metrics.Inc(MetricRevokeAll)
	a.emit(ctx, AuditEvent{
		EventType: AuditRevokedAll,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"deleted": strconv.Itoa(deleted)},
	})

	return nil
}

// Clean walks the registry, deleting records whose both expirations have
// passed and pruning dangling entries. Issue already runs this
// opportunistically; the exported method exists for operational tooling.
func (a *Authority) Clean(ctx context.Context) (token.CleanResult, error) {
	if a == nil {
		return token.CleanResult{}, ErrAuthorityNotReady
	}

	result, err := a.store.Clean(ctx, a.clock())
	if err != nil {
		return result, a.storeFault(ctx, "clean", err)
	}

	a.recordCleanResult(ctx, result)
	return result, nil
}

// Ping reports token store availability and round-trip latency, letting
// callers keep infrastructure outages apart from authentication failures.
func (a *Authority) Ping(ctx context.Context) (time.Duration, error) {
	if a == nil {
		return 0, ErrAuthorityNotReady
	}
	d, err := a.store.Ping(ctx)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// Close drains and stops the audit dispatcher.
func (a *Authority) Close() {
	if a == nil {
		return
	}
	if a.audit != nil {
		a.audit.Close()
	}
}

// AuditDropped returns how many audit events were shed under backpressure.
func (a *Authority) AuditDropped() uint64 {
	if a == nil || a.audit == nil {
		return 0
	}
	return a.audit.Dropped()
}

// MetricsSnapshot returns a copy of the authority counters.
func (a *Authority) MetricsSnapshot() MetricsSnapshot {
	if a == nil || a.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return a.metrics.Snapshot()
}

func (a *Authority) issueRecord(ctx context.Context, userID string, now time.Time) (*token.Record, error) {
	accessSecret, err := internal.NewOpaqueSecret()
	if err != nil {
		return nil, err
	}
	refreshSecret, err := internal.NewOpaqueSecret()
	if err != nil {
		return nil, err
	}

	rec := &token.Record{
		UserID:            userID,
		AccessSecret:      accessSecret,
		AccessExpiration:  now.Add(a.config.AccessTokenTTL).Unix(),
		RefreshSecret:     refreshSecret,
		RefreshExpiration: now.Add(a.config.RefreshTokenTTL).Unix(),
	}

	if err := a.store.Put(ctx, rec, a.config.RefreshTokenTTL); err != nil {
		return nil, a.storeFault(ctx, "put", err)
	}

	return rec, nil
}

// lookupByHandle unwraps a handle and loads its record. Returned errors are
// already mapped: ErrUnauthenticated for anything a caller did wrong,
// ErrStoreUnavailable for infrastructure faults.
func (a *Authority) lookupByHandle(ctx context.Context, accessJWT string) (*token.Record, error) {
	secret, err := a.jwtManager.UnwrapAccess(accessJWT)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if err := internal.ValidateOpaqueSecret(secret); err != nil {
		return nil, ErrUnauthenticated
	}

	rec, err := a.store.GetByAccessSecret(ctx, secret)
	if err != nil {
		if errors.Is(err, token.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, a.storeFault(ctx, "get", err)
	}

	return rec, nil
}

// refreshFailure maps rotation errors, triggering the theft response when the
// refresh window has already elapsed. A wrong or already-rotated secret is a
// plain mistake: it does not prove possession of a once-valid credential, so
// no revocation follows.
func (a *Authority) refreshFailure(ctx context.Context, userID string, err error) error {
	switch {
	case errors.Is(err, token.ErrRefreshExpired):
		a.metrics.Inc(MetricReuseDetected)
		a.metrics.Inc(MetricRefreshFailure)
		a.emit(ctx, AuditEvent{
			EventType: AuditReuseDetected,
			UserID:    userID,
			Error:     "refresh window elapsed",
		})
		if revokeErr := a.RevokeAll(ctx, userID); revokeErr != nil {
			a.logger.Error("tokenauth: revoke-all after reuse detection failed",
				"user_id", userID, "err", revokeErr)
		}
		return ErrUnauthenticated

	case errors.Is(err, token.ErrRefreshMismatch),
		errors.Is(err, token.ErrRecordRetired),
		errors.Is(err, token.ErrRecordNotFound):
		a.metrics.Inc(MetricRefreshFailure)
		a.emit(ctx, AuditEvent{
			EventType: AuditVerifyFailed,
			UserID:    userID,
			Error:     "refresh rejected",
		})
		return ErrUnauthenticated

	default:
		a.metrics.Inc(MetricRefreshFailure)
		return a.storeFault(ctx, "rotate", err)
	}
}

// verifyFailure collapses an internal failure into the uniform rejection,
// keeping the cause in logs and counters only.
func (a *Authority) verifyFailure(ctx context.Context, userID string, cause error) error {
	a.metrics.Inc(MetricVerifyFailure)
	a.emit(ctx, AuditEvent{
		EventType: AuditVerifyFailed,
		UserID:    userID,
		Error:     cause.Error(),
	})
	a.logger.Debug("tokenauth: verification failed", "user_id", userID, "err", cause)
	return ErrUnauthenticated
}

// storeFault maps store-layer errors to the exported infrastructure sentinel.
// Corrupt records count as faults too: data corruption must never be
// swallowed or downgraded to an authentication failure.
func (a *Authority) storeFault(ctx context.Context, op string, err error) error {
	a.metrics.Inc(MetricStoreError)
	if errors.Is(err, token.ErrRecordCorrupt) {
		a.logger.Error("tokenauth: corrupt token record", "op", op, "err", err)
	} else {
		a.logger.Warn("tokenauth: store operation failed", "op", op, "err", err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func (a *Authority) cleanOpportunistic(ctx context.Context, now time.Time) {
	result, err := a.store.Clean(ctx, now)
	if err != nil {
		// Issuance must not fail because cleanup could not run.
		a.metrics.Inc(MetricStoreError)
		a.logger.Warn("tokenauth: opportunistic cleanup failed", "err", err)
		return
	}
	a.recordCleanResult(ctx, result)
}

func (a *Authority) recordCleanResult(ctx context.Context, result token.CleanResult) {
	if result.Expired == 0 && result.Dangling == 0 {
		return
	}
	a.metrics.Add(MetricTokensCleaned, uint64(result.Expired))
	a.metrics.Add(MetricRegistryPruned, uint64(result.Dangling))
	a.emit(ctx, AuditEvent{
		EventType: AuditCleaned,
		Success:   true,
		Metadata: map[string]string{
			"expired":  strconv.Itoa(result.Expired),
			"dangling": strconv.Itoa(result.Dangling),
		},
	})
}

func (a *Authority) emit(ctx context.Context, event AuditEvent) {
	if a.audit == nil {
		return
	}
	event.Timestamp = a.clock()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	a.audit.Emit(ctx, event)
}
