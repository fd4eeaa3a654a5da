package session

import (
	"fmt"

	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/schema"
	"github.com/danmuck/parkd/internal/protocol/tlv"
)

// Status is the reply marker a client branches on.
type Status string

const (
	StatusReserved             Status = "reserved"
	StatusPartialOffer         Status = "partial_offer"
	StatusQuote                Status = "quote"
	StatusDeclined             Status = "declined"
	StatusLotNotFound          Status = "lot_not_found"
	StatusNoFreeSpaces         Status = "no_free_spaces"
	StatusBadTimeFormat        Status = "bad_time_format"
	StatusDepartureNotInFuture Status = "departure_not_in_future"
	StatusUnknownReservation   Status = "unknown_reservation"
	StatusBadRequest           Status = "bad_request"
)

// Known reports whether s is one of the protocol markers.
func (s Status) Known() bool {
	switch s {
	case StatusReserved, StatusPartialOffer, StatusQuote, StatusDeclined,
		StatusLotNotFound, StatusNoFreeSpaces, StatusBadTimeFormat,
		StatusDepartureNotInFuture, StatusUnknownReservation, StatusBadRequest:
		return true
	}
	return false
}

// Reply is the coordinator's answer to one request. Zero optional fields
// are omitted on the wire. Spaces is the count granted by a reserved reply.
type Reply struct {
	Status        Status
	ReservationID uint64
	Spaces        uint32
	Available     uint32
	Amount        int64
	Message       string
}

func (r Reply) fields() []tlv.Field {
	fields := []tlv.Field{tlv.String(schema.FieldStatus, string(r.Status))}
	if r.ReservationID != 0 {
		fields = append(fields, tlv.U64(schema.FieldReservationID, r.ReservationID))
	}
	if r.Spaces != 0 {
		fields = append(fields, tlv.U32(schema.FieldSpaces, r.Spaces))
	}
	if r.Available != 0 {
		fields = append(fields, tlv.U32(schema.FieldAvailable, r.Available))
	}
	if r.Amount != 0 {
		fields = append(fields, tlv.I64(schema.FieldAmount, r.Amount))
	}
	if r.Message != "" {
		fields = append(fields, tlv.String(schema.FieldMessage, r.Message))
	}
	return fields
}

// EncodeReply builds a reply frame echoing the request's seq.
func EncodeReply(seq uint32, r Reply) (frame.Frame, error) {
	if !r.Status.Known() {
		return frame.Frame{}, fmt.Errorf("session: unknown reply status %q", r.Status)
	}
	fields := r.fields()
	if err := schema.Validate(schema.KindReply, fields); err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{
		Header: frame.Header{
			Kind:  schema.KindReply,
			Seq:   seq,
			Flags: frame.FlagReply,
		},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

func DecodeReply(f frame.Frame) (Reply, error) {
	if f.Header.Kind != schema.KindReply {
		return Reply{}, fmt.Errorf("%w: %s", ErrUnexpectedKind, schema.KindName(f.Header.Kind))
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Reply{}, err
	}
	if err := schema.Validate(schema.KindReply, fields); err != nil {
		return Reply{}, err
	}
	status, err := fields.String(schema.FieldStatus)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{Status: Status(status)}
	if fields.Has(schema.FieldReservationID) {
		if r.ReservationID, err = fields.U64(schema.FieldReservationID); err != nil {
			return Reply{}, err
		}
	}
	if fields.Has(schema.FieldSpaces) {
		if r.Spaces, err = fields.U32(schema.FieldSpaces); err != nil {
			return Reply{}, err
		}
	}
	if fields.Has(schema.FieldAvailable) {
		if r.Available, err = fields.U32(schema.FieldAvailable); err != nil {
			return Reply{}, err
		}
	}
	if fields.Has(schema.FieldAmount) {
		if r.Amount, err = fields.I64(schema.FieldAmount); err != nil {
			return Reply{}, err
		}
	}
	if fields.Has(schema.FieldMessage) {
		if r.Message, err = fields.String(schema.FieldMessage); err != nil {
			return Reply{}, err
		}
	}
	return r, nil
}
