package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/parkd/internal/clock"
	"github.com/danmuck/parkd/internal/ledger"
	"github.com/danmuck/parkd/internal/lots"
	"github.com/danmuck/parkd/internal/observability"
	"github.com/danmuck/parkd/internal/pricing"
	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/schema"
	"github.com/danmuck/parkd/internal/protocol/session"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	eventBuffer = 64
	// outboxSize bounds replies queued for one session's writer.
	outboxSize = 32
)

// Human-readable reply text.
const (
	msgLotNotFound          = "Parking lot not found."
	msgNoFreeSpaces         = "No free parking spaces."
	msgBadTimeFormat        = "Invalid time format. Use HH:mm"
	msgDepartureNotInFuture = "Invalid departure time. Departure time must be in the future."
	msgBadRequest           = "Bad request."
	msgDeclined             = "Partial offer declined."
	msgUnknownReservation   = "Reservation not found."
)

var (
	ErrDispatcherStopped = errors.New("coordinator: dispatcher stopped")
	errWriteFailed       = errors.New("coordinator: write failed")
)

type DispatcherConfig struct {
	Session session.Config
	Limits  frame.Limits
	Clock   clock.Clock
}

// Stats is a point-in-time view of dispatcher-owned state.
type Stats struct {
	Lots         []lots.Lot
	Sessions     int
	Reservations int
	Earnings     []ledger.LotEarnings
	Grand        pricing.Money

	// Reserved is the spaces held by live reservations, per lot.
	Reserved map[int]int
}

type event interface{ isEvent() }

type connOpened struct{ conn net.Conn }

type requestReceived struct {
	sessionID string
	seq       uint32
	kind      uint16
	req       session.Request
}

type connClosed struct {
	sessionID string
	err       error
}

type statsRequest struct{ reply chan Stats }

func (connOpened) isEvent()      {}
func (requestReceived) isEvent() {}
func (connClosed) isEvent()      {}
func (statsRequest) isEvent()    {}

// Dispatcher is the single owner of the lot registry, the reservation
// ledger, earnings and the session table. Other goroutines reach that state
// only through events.
type Dispatcher struct {
	cfg      DispatcherConfig
	registry *lots.Registry
	ledger   *ledger.Ledger
	earnings *ledger.Earnings
	sessions map[string]*clientSession

	events chan event
	done   chan struct{}
	final  Stats
}

func NewDispatcher(registry *lots.Registry, cfg DispatcherConfig) *Dispatcher {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	ids := make([]int, 0, registry.Len())
	for _, lot := range registry.Snapshot() {
		ids = append(ids, lot.ID)
	}
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		ledger:   ledger.New(),
		earnings: ledger.NewEarnings(ids...),
		sessions: make(map[string]*clientSession),
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Run serves events until ctx is cancelled. All sessions are closed on
// return.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Session.PollInterval)
	defer ticker.Stop()
	defer func() {
		for _, sess := range d.sessions {
			d.closeSession(sess, "shutdown")
		}
		d.logOutstanding()
		d.final = d.stats()
		close(d.done)
	}()

	d.refreshGauges()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.events:
			d.handleEvent(ctx, ev)
		case <-ticker.C:
			d.refreshGauges()
		}
	}
}

// Open hands an accepted connection to the dispatch loop.
func (d *Dispatcher) Open(ctx context.Context, conn net.Conn) error {
	if !d.post(ctx, connOpened{conn: conn}) {
		_ = conn.Close()
		return ErrDispatcherStopped
	}
	return nil
}

// Stats is served by the dispatch loop. After Run returns it reports the
// final state.
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case d.events <- statsRequest{reply: reply}:
	case <-d.done:
		return d.final, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-d.done:
		return d.final, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) post(ctx context.Context, ev event) bool {
	select {
	case d.events <- ev:
		return true
	case <-d.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case connOpened:
		d.openSession(ctx, ev.conn)
	case requestReceived:
		sess, ok := d.sessions[ev.sessionID]
		if !ok {
			return
		}
		d.handleRequest(sess, ev)
	case connClosed:
		sess, ok := d.sessions[ev.sessionID]
		if !ok {
			return
		}
		reason := "eof"
		switch {
		case ev.err == nil || errors.Is(ev.err, io.EOF):
		case errors.Is(ev.err, errWriteFailed):
			reason = "write_failed"
			log.Warn().Str("session", sess.id).Str("remote", sess.remote).Err(ev.err).Msg("coordinator.session write failed")
		default:
			reason = "transport_fault"
			log.Warn().Str("session", sess.id).Str("remote", sess.remote).Err(ev.err).Msg("coordinator.session transport fault")
		}
		d.closeSession(sess, reason)
	case statsRequest:
		ev.reply <- d.stats()
	}
}

func (d *Dispatcher) openSession(ctx context.Context, conn net.Conn) {
	sess := &clientSession{
		id:          uuid.NewString(),
		remote:      conn.RemoteAddr().String(),
		conn:        conn,
		out:         make(chan frame.Frame, outboxSize),
		state:       StateIdle,
		connectedAt: d.cfg.Clock.Now(),
	}
	d.sessions[sess.id] = sess
	go d.writeLoop(ctx, sess.id, conn, sess.out)
	observability.SetActiveSessions(len(d.sessions))
	log.Info().Str("session", sess.id).Str("remote", sess.remote).Int("active", len(d.sessions)).Msg("coordinator.session connected")

	snap, err := session.EncodeSnapshot(0, d.snapshot())
	if err != nil {
		log.Error().Err(err).Msg("coordinator.session encode snapshot")
		d.closeSession(sess, "snapshot_failed")
		return
	}
	if !d.write(sess, snap) {
		return
	}
	go d.readLoop(ctx, sess.id, conn)
}

func (d *Dispatcher) closeSession(sess *clientSession, reason string) {
	if _, ok := d.sessions[sess.id]; !ok {
		return
	}
	delete(d.sessions, sess.id)
	close(sess.out)
	_ = sess.conn.Close()
	observability.SetActiveSessions(len(d.sessions))
	observability.RecordSessionClosed(reason)
	ev := log.Info()
	if sess.state == StateAwaitingPartialConfirm {
		ev = ev.Bool("offer_lapsed", true)
	}
	ev.Str("session", sess.id).
		Str("remote", sess.remote).
		Stringer("state", sess.state).
		Str("reason", reason).
		Uint64("requests", sess.requests).
		Dur("connected_for", d.cfg.Clock.Now().Sub(sess.connectedAt)).
		Int("active", len(d.sessions)).
		Msg("coordinator.session disconnected")
}

// readLoop decodes frames for one connection and forwards them in order.
// It never touches dispatcher state.
func (d *Dispatcher) readLoop(ctx context.Context, id string, conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		if d.cfg.Session.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(d.cfg.Session.ReadTimeout))
		}
		fr, err := frame.ReadFrame(reader, d.cfg.Limits)
		if err != nil {
			d.post(ctx, connClosed{sessionID: id, err: err})
			return
		}
		req, err := session.DecodeRequest(fr)
		if err != nil {
			d.post(ctx, connClosed{sessionID: id, err: err})
			return
		}
		if !d.post(ctx, requestReceived{sessionID: id, seq: fr.Header.Seq, kind: fr.Header.Kind, req: req}) {
			return
		}
	}
}

// writeLoop drains one session's outbox with a per-frame write deadline.
// It exits when the dispatcher closes the outbox or a write fails.
func (d *Dispatcher) writeLoop(ctx context.Context, id string, conn net.Conn, out <-chan frame.Frame) {
	for f := range out {
		_ = conn.SetWriteDeadline(time.Now().Add(d.cfg.Session.WriteTimeout))
		if err := frame.WriteFrame(conn, f, d.cfg.Limits); err != nil {
			d.post(ctx, connClosed{sessionID: id, err: fmt.Errorf("%w: %w", errWriteFailed, err)})
			return
		}
	}
}

// write queues f for the session's writer. A full outbox means the client
// stopped reading its replies, and the session is closed.
func (d *Dispatcher) write(sess *clientSession, f frame.Frame) bool {
	select {
	case sess.out <- f:
		return true
	default:
		log.Warn().Str("session", sess.id).Str("remote", sess.remote).Int("queued", len(sess.out)).Msg("coordinator.session outbox full")
		d.closeSession(sess, "slow_consumer")
		return false
	}
}

func (d *Dispatcher) handleRequest(sess *clientSession, ev requestReceived) {
	start := time.Now()
	sess.requests++

	var (
		reply session.Reply
		send  bool
	)
	if sess.state == StateAwaitingPartialConfirm {
		reply = d.resolveOffer(sess, ev.req)
		send = true
	} else {
		reply, send = d.handleIdle(sess, ev.req)
	}

	status := "none"
	if send {
		status = string(reply.Status)
	}
	observability.RecordRequest(schema.KindName(ev.kind), status, time.Since(start))
	if !send {
		return
	}
	f, err := session.EncodeReply(ev.seq, reply)
	if err != nil {
		log.Error().Str("session", sess.id).Err(err).Msg("coordinator.session encode reply")
		d.closeSession(sess, "encode_failed")
		return
	}
	d.write(sess, f)
}

// handleIdle serves a request from StateIdle. The bool is false for
// messages that get no reply.
func (d *Dispatcher) handleIdle(sess *clientSession, req session.Request) (session.Reply, bool) {
	switch req := req.(type) {
	case session.AllocateRequest:
		return d.allocate(sess, req), true
	case session.QuoteRequest:
		return d.quote(sess, req), true
	case session.ReleaseRequest:
		d.release(sess, req)
		return session.Reply{}, false
	case session.PartialAnswer:
		log.Debug().Str("session", sess.id).Msg("coordinator.session partial answer with no pending offer")
		return session.Reply{Status: session.StatusBadRequest, Message: msgBadRequest}, true
	default:
		return session.Reply{Status: session.StatusBadRequest, Message: msgBadRequest}, true
	}
}

func (d *Dispatcher) allocate(sess *clientSession, req session.AllocateRequest) session.Reply {
	lotID := int(req.LotID)
	spaces := int(req.Spaces)
	alloc, err := d.registry.TryAllocate(lotID, spaces)
	log.Debug().
		Str("session", sess.id).
		Int("lot", lotID).
		Int("spaces", spaces).
		Stringer("outcome", alloc.Outcome).
		Msg("coordinator.allocate")
	switch {
	case alloc.Outcome == lots.OutcomeNotFound:
		return session.Reply{Status: session.StatusLotNotFound, Message: msgLotNotFound}
	case err != nil:
		return session.Reply{Status: session.StatusBadRequest, Message: msgBadRequest}
	case alloc.Outcome == lots.OutcomeLotFull:
		return session.Reply{Status: session.StatusNoFreeSpaces, Message: msgNoFreeSpaces}
	}

	departure, err := pricing.ParseTimeOfDay(req.Departure)
	if err != nil {
		return session.Reply{Status: session.StatusBadTimeFormat, Message: msgBadTimeFormat}
	}
	now := d.cfg.Clock.Now()
	if !departure.After(now) {
		return session.Reply{Status: session.StatusDepartureNotInFuture, Message: msgDepartureNotInFuture}
	}
	arrival := now
	if !req.Arrival.IsZero() {
		arrival = req.Arrival.In(now.Location())
	}

	if alloc.Outcome == lots.OutcomePartial {
		sess.state = StateAwaitingPartialConfirm
		sess.pending = pendingOffer{
			lotID:     lotID,
			offered:   alloc.Spaces,
			arrival:   arrival,
			departure: departure,
			vehicles:  req.Vehicles,
		}
		log.Info().
			Str("session", sess.id).
			Int("lot", lotID).
			Int("requested", spaces).
			Int("available", alloc.Spaces).
			Msg("coordinator.allocate partial offer")
		return session.Reply{
			Status:    session.StatusPartialOffer,
			Available: uint32(alloc.Spaces),
			Message:   "There is only this many free spaces: " + strconv.Itoa(alloc.Spaces),
		}
	}
	return d.commit(sess, lotID, spaces, arrival, departure, req.Vehicles)
}

// resolveOffer consumes the frame that follows a partial offer. Only an
// accepting PartialAnswer commits; anything else declines.
func (d *Dispatcher) resolveOffer(sess *clientSession, req session.Request) session.Reply {
	offer := sess.pending
	sess.state = StateIdle
	sess.pending = pendingOffer{}

	answer, ok := req.(session.PartialAnswer)
	if !ok || !answer.Accept {
		log.Info().Str("session", sess.id).Int("lot", offer.lotID).Msg("coordinator.allocate partial offer declined")
		return session.Reply{Status: session.StatusDeclined, Message: msgDeclined}
	}
	available, _ := d.registry.Available(offer.lotID)
	if available == 0 {
		return session.Reply{Status: session.StatusNoFreeSpaces, Message: msgNoFreeSpaces}
	}
	spaces := min(offer.offered, available)
	return d.commit(sess, offer.lotID, spaces, offer.arrival, offer.departure, offer.vehicles)
}

func (d *Dispatcher) commit(
	sess *clientSession,
	lotID, spaces int,
	arrival time.Time,
	departure pricing.TimeOfDay,
	vehicles []session.Vehicle,
) session.Reply {
	lot := d.registry.Commit(lotID, spaces)
	r := d.ledger.Create(ledger.Reservation{
		LotID:     lotID,
		Spaces:    spaces,
		Arrival:   arrival,
		Departure: departure,
		Vehicles:  toLedgerVehicles(vehicles),
		SessionID: sess.id,
	})
	observability.SetLotOccupancy(lot.ID, lot.OccupiedSpaces, lot.TotalSpaces)
	log.Info().
		Str("session", sess.id).
		Uint64("reservation", r.ID).
		Int("lot", lotID).
		Int("spaces", spaces).
		Int("occupied", lot.OccupiedSpaces).
		Int("total", lot.TotalSpaces).
		Msg("coordinator.allocate reserved")
	return session.Reply{
		Status:        session.StatusReserved,
		ReservationID: r.ID,
		Spaces:        uint32(spaces),
		Message:       strconv.FormatUint(r.ID, 10),
	}
}

func (d *Dispatcher) quote(sess *clientSession, req session.QuoteRequest) session.Reply {
	r, ok := d.ledger.Get(req.ReservationID)
	if !ok {
		return session.Reply{
			Status:        session.StatusUnknownReservation,
			ReservationID: req.ReservationID,
			Message:       msgUnknownReservation,
		}
	}
	fee := d.fee(r)
	log.Info().
		Str("session", sess.id).
		Str("remote", sess.remote).
		Uint64("reservation", r.ID).
		Str("amount", fee.String()).
		Msg("coordinator.quote")
	return session.Reply{
		Status:        session.StatusQuote,
		ReservationID: r.ID,
		Amount:        int64(fee),
		Message:       fee.String(),
	}
}

func (d *Dispatcher) release(sess *clientSession, req session.ReleaseRequest) {
	r, ok := d.ledger.Remove(req.ReservationID)
	if !ok {
		log.Warn().Str("session", sess.id).Uint64("reservation", req.ReservationID).Msg("coordinator.release unknown reservation")
		return
	}
	fee := d.fee(r)
	d.earnings.Add(r.LotID, fee)
	lot := d.registry.Release(r.LotID, r.Spaces)
	observability.RecordEarnings(r.LotID, fee.Units())
	observability.SetLotOccupancy(lot.ID, lot.OccupiedSpaces, lot.TotalSpaces)
	log.Info().
		Str("session", sess.id).
		Uint64("reservation", r.ID).
		Int("lot", r.LotID).
		Int("spaces", r.Spaces).
		Str("fee", fee.String()).
		Str("lot_earned", d.earnings.Total(r.LotID).String()).
		Str("arrived", humanize.RelTime(r.Arrival, d.cfg.Clock.Now(), "ago", "from now")).
		Strs("plates", plates(r.Vehicles)).
		Int("occupied", lot.OccupiedSpaces).
		Msg("coordinator.release settled")
}

// fee is the one pricing path for quote and settlement.
func (d *Dispatcher) fee(r ledger.Reservation) pricing.Money {
	lot, _ := d.registry.Lookup(r.LotID)
	return pricing.Fee(r.Arrival, r.Departure, r.Spaces, lot.PricePerHour)
}

func (d *Dispatcher) snapshot() session.LotSnapshot {
	snap := make(session.LotSnapshot, d.registry.Len())
	for _, lot := range d.registry.Snapshot() {
		snap[uint32(lot.ID)] = session.LotInfo{
			TotalSpaces:    uint32(lot.TotalSpaces),
			OccupiedSpaces: uint32(lot.OccupiedSpaces),
			PricePerHour:   int64(lot.PricePerHour),
		}
	}
	return snap
}

func (d *Dispatcher) stats() Stats {
	return Stats{
		Lots:         d.registry.Snapshot(),
		Sessions:     len(d.sessions),
		Reservations: d.ledger.Len(),
		Reserved:     d.ledger.SpacesByLot(),
		Earnings:     d.earnings.Summary(),
		Grand:        d.earnings.Grand(),
	}
}

func (d *Dispatcher) refreshGauges() {
	reserved := d.ledger.SpacesByLot()
	for _, lot := range d.registry.Snapshot() {
		observability.SetLotOccupancy(lot.ID, lot.OccupiedSpaces, lot.TotalSpaces)
		// occupancy covers the configured baseline plus every live reservation
		if reserved[lot.ID] > lot.OccupiedSpaces {
			log.Error().
				Int("lot", lot.ID).
				Int("reserved", reserved[lot.ID]).
				Int("occupied", lot.OccupiedSpaces).
				Msg("coordinator.Dispatcher ledger holds more spaces than the lot has occupied")
		}
	}
	observability.SetActiveSessions(len(d.sessions))
}

func (d *Dispatcher) logOutstanding() {
	for _, r := range d.ledger.List() {
		log.Info().
			Uint64("reservation", r.ID).
			Int("lot", r.LotID).
			Int("spaces", r.Spaces).
			Str("departure", r.Departure.String()).
			Str("owed", d.fee(r).String()).
			Msg("coordinator.Dispatcher outstanding at shutdown")
	}
}

func toLedgerVehicles(in []session.Vehicle) []ledger.Vehicle {
	if len(in) == 0 {
		return nil
	}
	out := make([]ledger.Vehicle, len(in))
	for i, v := range in {
		out[i] = ledger.Vehicle{
			Manufacturer: v.Manufacturer,
			Model:        v.Model,
			Color:        v.Color,
			Plate:        v.Plate,
		}
	}
	return out
}

func plates(vehicles []ledger.Vehicle) []string {
	out := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, v.Plate)
	}
	return out
}
