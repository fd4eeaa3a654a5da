// Package client speaks the parkd session protocol from the requester side.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/parkd/internal/pricing"
	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired      = errors.New("client: coordinator address required")
	ErrConnClosed           = errors.New("client: connection closed")
	ErrLotNotFound          = errors.New("client: parking lot not found")
	ErrNoFreeSpaces         = errors.New("client: no free parking spaces")
	ErrBadTimeFormat        = errors.New("client: invalid time format, use HH:mm")
	ErrDepartureNotInFuture = errors.New("client: departure time must be in the future")
	ErrDeclined             = errors.New("client: partial offer declined")
	ErrBadRequest           = errors.New("client: bad request")
	ErrUnknownReservation   = errors.New("client: reservation not found")
	ErrUnexpectedReply      = errors.New("client: unexpected reply")
)

type Config struct {
	Address            string
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Session:            session.DefaultConfig(),
		MaxConnectAttempts: 1,
	}
}

// Reservation is what the client learns about a committed allocation.
// Spaces is the count the coordinator granted.
type Reservation struct {
	ID      uint64
	LotID   uint32
	Spaces  uint32
	Partial bool
}

// Conn is one session with the coordinator. Calls are serialized.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    session.Config
	lots   session.LotSnapshot

	mu  sync.Mutex
	seq uint32
}

// Dial connects, retrying with backoff up to MaxConnectAttempts (0 means
// until ctx ends), and reads the lot snapshot.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	retry := session.NewRetry(cfg.Session.Backoff)

	for {
		c, err := dialOnce(ctx, cfg)
		if err == nil {
			return c, nil
		}
		attempt := retry.Failures() + 1
		log.Warn().Int("attempt", attempt).Str("addr", cfg.Address).Err(err).Msg("client.Dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := retry.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

func dialOnce(ctx context.Context, cfg Config) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		conn:   raw,
		reader: bufio.NewReader(raw),
		cfg:    cfg.Session,
	}
	if err := c.setReadDeadline(ctx, cfg.Session.ConnectTimeout); err != nil {
		_ = raw.Close()
		return nil, err
	}
	fr, err := frame.ReadFrame(c.reader, frame.DefaultLimits())
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("client: read snapshot: %w", err)
	}
	snap, err := session.DecodeSnapshot(fr)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	c.lots = snap
	return c, nil
}

// Lots returns the snapshot received when the session opened.
func (c *Conn) Lots() session.LotSnapshot {
	return c.lots
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Reserve asks for spaces. When the lot cannot cover the request, decide is
// called with the available count and its answer is sent back; a nil
// decide declines.
func (c *Conn) Reserve(ctx context.Context, req session.AllocateRequest, decide func(available int) bool) (Reservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTrip(ctx, req)
	if err != nil {
		return Reservation{}, err
	}
	switch reply.Status {
	case session.StatusReserved:
		return Reservation{ID: reply.ReservationID, LotID: req.LotID, Spaces: granted(reply, req.Spaces)}, nil
	case session.StatusPartialOffer:
	default:
		return Reservation{}, statusError(reply)
	}

	available := reply.Available
	accept := decide != nil && decide(int(available))
	reply, err = c.roundTrip(ctx, session.PartialAnswer{Accept: accept})
	if err != nil {
		return Reservation{}, err
	}
	if reply.Status != session.StatusReserved {
		return Reservation{}, statusError(reply)
	}
	return Reservation{ID: reply.ReservationID, LotID: req.LotID, Spaces: granted(reply, available), Partial: true}, nil
}

// granted is the count the coordinator committed, which can be below the
// offer when other sessions took spaces meanwhile.
func granted(reply session.Reply, fallback uint32) uint32 {
	if reply.Spaces != 0 {
		return reply.Spaces
	}
	return fallback
}

// Quote returns the fee owed for a reservation if released now.
func (c *Conn) Quote(ctx context.Context, id uint64) (pricing.Money, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTrip(ctx, session.QuoteRequest{ReservationID: id})
	if err != nil {
		return 0, err
	}
	if reply.Status != session.StatusQuote {
		return 0, statusError(reply)
	}
	return pricing.Money(reply.Amount), nil
}

// Release settles a reservation. The coordinator sends no reply.
func (c *Conn) Release(ctx context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.send(ctx, session.ReleaseRequest{ReservationID: id})
	return err
}

func (c *Conn) send(ctx context.Context, req session.Request) (uint32, error) {
	if c.conn == nil {
		return 0, ErrConnClosed
	}
	c.seq++
	f, err := session.EncodeRequest(c.seq, req)
	if err != nil {
		return 0, err
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	if err := frame.WriteFrame(c.conn, f, frame.DefaultLimits()); err != nil {
		return 0, err
	}
	return c.seq, nil
}

func (c *Conn) roundTrip(ctx context.Context, req session.Request) (session.Reply, error) {
	seq, err := c.send(ctx, req)
	if err != nil {
		return session.Reply{}, err
	}
	if err := c.setReadDeadline(ctx, c.cfg.ReadTimeout); err != nil {
		return session.Reply{}, err
	}
	fr, err := frame.ReadFrame(c.reader, frame.DefaultLimits())
	if err != nil {
		return session.Reply{}, err
	}
	reply, err := session.DecodeReply(fr)
	if err != nil {
		return session.Reply{}, err
	}
	if fr.Header.Seq != seq {
		return session.Reply{}, fmt.Errorf("%w: seq=%d want=%d", ErrUnexpectedReply, fr.Header.Seq, seq)
	}
	return reply, nil
}

// setReadDeadline applies the tighter of timeout and the ctx deadline. With
// neither set the read blocks.
func (c *Conn) setReadDeadline(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return c.conn.SetReadDeadline(deadline)
}

func statusError(r session.Reply) error {
	var base error
	switch r.Status {
	case session.StatusLotNotFound:
		base = ErrLotNotFound
	case session.StatusNoFreeSpaces:
		base = ErrNoFreeSpaces
	case session.StatusBadTimeFormat:
		base = ErrBadTimeFormat
	case session.StatusDepartureNotInFuture:
		base = ErrDepartureNotInFuture
	case session.StatusDeclined:
		base = ErrDeclined
	case session.StatusBadRequest:
		base = ErrBadRequest
	case session.StatusUnknownReservation:
		base = ErrUnknownReservation
	default:
		return fmt.Errorf("%w: status=%q", ErrUnexpectedReply, r.Status)
	}
	if r.Message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, r.Message)
}
