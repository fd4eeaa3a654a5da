package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/schema"
	"github.com/danmuck/parkd/internal/protocol/tlv"
	"github.com/fxamacker/cbor/v2"
)

var (
	ErrUnexpectedKind = errors.New("session: unexpected message kind")
	ErrInvalidRequest = errors.New("session: invalid request")
)

// Vehicle is the wire shape of one entry in an allocate request.
type Vehicle struct {
	Manufacturer string `cbor:"manufacturer"`
	Model        string `cbor:"model"`
	Color        string `cbor:"color"`
	Plate        string `cbor:"plate"`
}

// Request is one client->coordinator message. The concrete types are
// AllocateRequest, QuoteRequest, ReleaseRequest and PartialAnswer.
type Request interface {
	Kind() uint16
	fields() ([]tlv.Field, error)
}

// AllocateRequest asks for Spaces spaces in LotID until Departure ("HH:mm").
// A zero Arrival means the coordinator uses its own clock.
type AllocateRequest struct {
	LotID     uint32
	Spaces    uint32
	Departure string
	Arrival   time.Time
	Vehicles  []Vehicle
}

func (AllocateRequest) Kind() uint16 { return schema.KindAllocate }

func (r AllocateRequest) fields() ([]tlv.Field, error) {
	fields := []tlv.Field{
		tlv.U32(schema.FieldLotID, r.LotID),
		tlv.U32(schema.FieldSpaces, r.Spaces),
		tlv.String(schema.FieldDeparture, r.Departure),
	}
	if !r.Arrival.IsZero() {
		fields = append(fields, tlv.I64(schema.FieldArrival, r.Arrival.UnixNano()))
	}
	if len(r.Vehicles) > 0 {
		raw, err := cbor.Marshal(r.Vehicles)
		if err != nil {
			return nil, fmt.Errorf("session: encode vehicles: %w", err)
		}
		fields = append(fields, tlv.Bytes(schema.FieldVehicles, raw))
	}
	return fields, nil
}

// QuoteRequest asks for the current fee of a reservation.
type QuoteRequest struct {
	ReservationID uint64
}

func (QuoteRequest) Kind() uint16 { return schema.KindQuote }

func (r QuoteRequest) fields() ([]tlv.Field, error) {
	return []tlv.Field{tlv.U64(schema.FieldReservationID, r.ReservationID)}, nil
}

// ReleaseRequest settles a reservation. It has no reply.
type ReleaseRequest struct {
	ReservationID uint64
}

func (ReleaseRequest) Kind() uint16 { return schema.KindRelease }

func (r ReleaseRequest) fields() ([]tlv.Field, error) {
	return []tlv.Field{tlv.U64(schema.FieldReservationID, r.ReservationID)}, nil
}

// PartialAnswer answers a partial_offer reply.
type PartialAnswer struct {
	Accept bool
}

func (PartialAnswer) Kind() uint16 { return schema.KindPartialAnswer }

func (r PartialAnswer) fields() ([]tlv.Field, error) {
	return []tlv.Field{tlv.Bool(schema.FieldAccept, r.Accept)}, nil
}

// EncodeRequest builds a validated request frame.
func EncodeRequest(seq uint32, req Request) (frame.Frame, error) {
	if req == nil {
		return frame.Frame{}, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	fields, err := req.fields()
	if err != nil {
		return frame.Frame{}, err
	}
	if err := schema.Validate(req.Kind(), fields); err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{
		Header:  frame.Header{Kind: req.Kind(), Seq: seq},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

// DecodeRequest maps a frame to its Request by kind. Replies and snapshots
// are not requests.
func DecodeRequest(f frame.Frame) (Request, error) {
	kind := f.Header.Kind
	switch kind {
	case schema.KindAllocate, schema.KindQuote, schema.KindRelease, schema.KindPartialAnswer:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedKind, schema.KindName(kind))
	}
	if f.IsReply() {
		return nil, fmt.Errorf("%w: reply flag set on %s", ErrInvalidRequest, schema.KindName(kind))
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(kind, fields); err != nil {
		return nil, err
	}

	switch kind {
	case schema.KindAllocate:
		return decodeAllocate(fields)
	case schema.KindQuote:
		id, err := fields.U64(schema.FieldReservationID)
		if err != nil {
			return nil, err
		}
		return QuoteRequest{ReservationID: id}, nil
	case schema.KindRelease:
		id, err := fields.U64(schema.FieldReservationID)
		if err != nil {
			return nil, err
		}
		return ReleaseRequest{ReservationID: id}, nil
	default:
		accept, err := fields.Bool(schema.FieldAccept)
		if err != nil {
			return nil, err
		}
		return PartialAnswer{Accept: accept}, nil
	}
}

func decodeAllocate(fields tlv.Fields) (AllocateRequest, error) {
	var req AllocateRequest
	var err error
	if req.LotID, err = fields.U32(schema.FieldLotID); err != nil {
		return AllocateRequest{}, err
	}
	if req.Spaces, err = fields.U32(schema.FieldSpaces); err != nil {
		return AllocateRequest{}, err
	}
	if req.Departure, err = fields.String(schema.FieldDeparture); err != nil {
		return AllocateRequest{}, err
	}
	if fields.Has(schema.FieldArrival) {
		ns, err := fields.I64(schema.FieldArrival)
		if err != nil {
			return AllocateRequest{}, err
		}
		req.Arrival = time.Unix(0, ns)
	}
	if fields.Has(schema.FieldVehicles) {
		raw, err := fields.Bytes(schema.FieldVehicles)
		if err != nil {
			return AllocateRequest{}, err
		}
		if err := cbor.Unmarshal(raw, &req.Vehicles); err != nil {
			return AllocateRequest{}, fmt.Errorf("%w: vehicles: %v", ErrInvalidRequest, err)
		}
	}
	return req, nil
}
