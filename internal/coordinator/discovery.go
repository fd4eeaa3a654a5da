package coordinator

import (
	"context"
	"errors"
	"net"

	"github.com/danmuck/parkd/internal/observability"
	"github.com/danmuck/parkd/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const maxDiscoveryDatagram = 2048

// DiscoveryResponder answers every non-empty datagram with the session
// endpoint. It holds no coordinator state.
type DiscoveryResponder struct {
	pc      net.PacketConn
	info    session.DiscoveryInfo
	payload []byte
	backoff session.BackoffConfig
}

// NewDiscoveryResponder encodes the reply once. backoff paces retries after
// a failed read.
func NewDiscoveryResponder(pc net.PacketConn, info session.DiscoveryInfo, backoff session.BackoffConfig) (*DiscoveryResponder, error) {
	payload, err := session.EncodeDiscoveryInfo(info)
	if err != nil {
		return nil, err
	}
	return &DiscoveryResponder{pc: pc, info: info, payload: payload, backoff: backoff}, nil
}

// Serve blocks until ctx is cancelled or the socket is closed. Read errors
// are logged and retried.
func (r *DiscoveryResponder) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.pc.Close()
	})
	defer stop()

	log.Info().
		Str("addr", r.pc.LocalAddr().String()).
		Str("advertise", r.info.Addr()).
		Msg("coordinator.discovery listening")
	buf := make([]byte, maxDiscoveryDatagram)
	retry := session.NewRetry(r.backoff)
	for {
		n, addr, err := r.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Int("failures", retry.Failures()+1).Msg("coordinator.discovery read failed")
			if retry.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		retry.Reset()
		if n == 0 {
			continue
		}
		if _, err := r.pc.WriteTo(r.payload, addr); err != nil {
			log.Warn().Str("remote", addr.String()).Err(err).Msg("coordinator.discovery reply failed")
			continue
		}
		observability.RecordDiscovery()
		log.Debug().Str("remote", addr.String()).Msg("coordinator.discovery answered")
	}
}
