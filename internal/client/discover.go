package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/parkd/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrDiscoveryFailed = errors.New("client: no discovery reply")

// discoveryRequest is the request datagram. Any non-empty payload works.
var discoveryRequest = []byte("parkd.discover")

type DiscoverConfig struct {
	Addr        string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     session.BackoffConfig
}

func DefaultDiscoverConfig() DiscoverConfig {
	return DiscoverConfig{
		Addr:        "127.0.0.1:15001",
		Timeout:     time.Second,
		MaxAttempts: 3,
		Backoff:     session.DefaultConfig().Backoff,
	}
}

// Discover asks the discovery responder for the session endpoint. Each
// attempt sends one datagram and waits Timeout for the reply.
func Discover(ctx context.Context, cfg DiscoverConfig) (session.DiscoveryInfo, error) {
	defaults := DefaultDiscoverConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", cfg.Addr)
	if err != nil {
		return session.DiscoveryInfo{}, err
	}
	defer conn.Close()

	retry := session.NewRetry(cfg.Backoff)
	buf := make([]byte, 2048)
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		info, err := discoverOnce(ctx, conn, cfg.Timeout, buf)
		if err == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			return session.DiscoveryInfo{}, ctx.Err()
		}
		lastErr = err
		log.Debug().Int("attempt", attempt).Str("addr", cfg.Addr).Err(err).Msg("client.Discover no reply")
		if attempt == cfg.MaxAttempts {
			break
		}
		if err := retry.Wait(ctx); err != nil {
			return session.DiscoveryInfo{}, err
		}
	}
	return session.DiscoveryInfo{}, fmt.Errorf("%w after %d attempts: %v", ErrDiscoveryFailed, cfg.MaxAttempts, lastErr)
}

func discoverOnce(ctx context.Context, conn net.Conn, timeout time.Duration, buf []byte) (session.DiscoveryInfo, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return session.DiscoveryInfo{}, err
	}
	if _, err := conn.Write(discoveryRequest); err != nil {
		return session.DiscoveryInfo{}, err
	}
	n, err := conn.Read(buf)
	if err != nil {
		return session.DiscoveryInfo{}, err
	}
	return session.DecodeDiscoveryInfo(buf[:n])
}
