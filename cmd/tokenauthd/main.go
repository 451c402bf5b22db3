// Command tokenauthd exposes the token authority over a minimal HTTP surface,
// mirroring the token endpoints of the Arctic Fox backend.
//
// Endpoints:
//
//	POST   /tokens — issue a new pair (demo identity from the X-User-ID header;
//	                 production deployments authenticate upstream of this)
//	GET    /tokens — check the presented access token
//	PUT    /tokens — refresh: JSON {"access_token":...,"refresh_token":...};
//	                 the refresh token may also arrive in a refresh_token cookie
//	DELETE /tokens — revoke the presented access token
//
// Configuration comes from the environment (see appConfig). Audit events are
// published to a Redis Stream via watermill.
//
// Run:
//
//	REDIS_URL=redis://localhost:6379/0 SECRET_KEY=dev-secret-key go run ./cmd/tokenauthd
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"

	"github.com/arcticfox/tokenauth"
	"github.com/arcticfox/tokenauth/events"
)

type appConfig struct {
	HTTPAddr           string `env:"HTTP_ADDR" env-default:":8080"`
	RedisURL           string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	SecretKey          string `env:"SECRET_KEY" env-required:"true"`
	Issuer             string `env:"TOKEN_ISSUER" env-default:"tokenauthd"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_MINUTES" env-default:"15"`
	RefreshTokenDays   int    `env:"REFRESH_TOKEN_DAYS" env-default:"30"`
	ExpireGraceSeconds int    `env:"EXPIRE_GRACE_SECONDS" env-default:"5"`
	KeyPrefix          string `env:"KEY_PREFIX"`
	EventsTopic        string `env:"EVENTS_TOPIC" env-default:"tokenauth.audit"`
}

// passthroughProvider trusts the upstream authenticator: any user id the demo
// sees is resolved to a bare identity. A real deployment wires the user table.
type passthroughProvider struct{}

func (passthroughProvider) ResolveUser(_ context.Context, userID string) (*tokenauth.Identity, error) {
	if userID == "" {
		return nil, tokenauth.ErrUserNotFound
	}
	return &tokenauth.Identity{ID: userID}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var cfg appConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: rdb},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		logger.Error("event publisher init failed", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	authCfg := tokenauth.DefaultConfig()
	authCfg.SecretKey = []byte(cfg.SecretKey)
	authCfg.Issuer = cfg.Issuer
	authCfg.AccessTokenTTL = time.Duration(cfg.AccessTokenMinutes) * time.Minute
	authCfg.RefreshTokenTTL = time.Duration(cfg.RefreshTokenDays) * 24 * time.Hour
	authCfg.ExpireGrace = time.Duration(cfg.ExpireGraceSeconds) * time.Second
	authCfg.RedisPrefix = cfg.KeyPrefix

	sink := events.NewPublisherSink(publisher, cfg.EventsTopic, func(err error) {
		logger.Warn("audit publish failed", "err", err)
	})

	authority, err := tokenauth.New().
		WithConfig(authCfg).
		WithRedis(rdb).
		WithUserProvider(passthroughProvider{}).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("authority build failed", "err", err)
		os.Exit(1)
	}
	defer authority.Close()

	srv := &server{authority: authority, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/tokens", srv.tokens)
	mux.HandleFunc("/healthz", srv.health)

	logger.Info("tokenauthd listening", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

type server struct {
	authority *tokenauth.Authority
	logger    *slog.Logger
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *server) tokens(w http.ResponseWriter, r *http.Request) {
	ctx := tokenauth.WithClientIP(r.Context(), clientIP(r))

	switch r.Method {
	case http.MethodPost:
		s.issue(ctx, w, r)
	case http.MethodGet:
		s.check(ctx, w, r)
	case http.MethodPut:
		s.refresh(ctx, w, r)
	case http.MethodDelete:
		s.revoke(ctx, w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *server) issue(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized)
		return
	}

	pair, err := s.authority.Issue(ctx, userID)
	if err != nil {
		s.fail(w, err)
		return
	}

	setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *server) check(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	identity, err := s.authority.VerifyAccess(ctx, bearerToken(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": identity.ID})
}

func (s *server) refresh(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie("refresh_token"); err == nil {
			req.RefreshToken = c.Value
		}
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized)
		return
	}

	pair, err := s.authority.Refresh(ctx, req.AccessToken, req.RefreshToken)
	if err != nil {
		s.fail(w, err)
		return
	}

	setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *server) revoke(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if err := s.authority.RevokeCurrent(ctx, bearerToken(r)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authority.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps authority errors to status codes. Store outages become 503, not
// 401 — an outage must not look like a mass revocation.
func (s *server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tokenauth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized)
	case errors.Is(err, tokenauth.ErrStoreUnavailable):
		s.logger.Error("token store fault", "err", err)
		writeError(w, http.StatusServiceUnavailable)
	default:
		s.logger.Error("unexpected failure", "err", err)
		writeError(w, http.StatusInternalServerError)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

func setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/tokens",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
}
