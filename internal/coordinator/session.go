package coordinator

import (
	"net"
	"time"

	"github.com/danmuck/parkd/internal/pricing"
	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/session"
)

// SessionState is where a client session sits in the allocate exchange.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingPartialConfirm
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPartialConfirm:
		return "awaiting_partial_confirm"
	default:
		return "unknown"
	}
}

// pendingOffer is the allocate request held while the client decides on a
// partial offer.
type pendingOffer struct {
	lotID     int
	offered   int
	arrival   time.Time
	departure pricing.TimeOfDay
	vehicles  []session.Vehicle
}

// clientSession is dispatcher-owned state for one TCP connection.
type clientSession struct {
	id          string
	remote      string
	conn        net.Conn
	out         chan frame.Frame
	state       SessionState
	pending     pendingOffer
	connectedAt time.Time
	requests    uint64
}
