package schema

import (
	"fmt"

	"github.com/danmuck/parkd/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message kinds carried in frame.Header.Kind.
const (
	KindLotSnapshot   uint16 = 1
	KindAllocate      uint16 = 2
	KindQuote         uint16 = 3
	KindRelease       uint16 = 4
	KindPartialAnswer uint16 = 5
	KindReply         uint16 = 6
)

// Field IDs.
const (
	FieldLotID     uint16 = 1
	FieldSpaces    uint16 = 2
	FieldDeparture uint16 = 3
	FieldArrival   uint16 = 4
	FieldVehicles  uint16 = 5

	FieldReservationID uint16 = 100

	FieldAccept uint16 = 200

	FieldStatus    uint16 = 300
	FieldAvailable uint16 = 301
	FieldAmount    uint16 = 302
	FieldMessage   uint16 = 303
)

// KindName returns a stable label for logs and metrics.
func KindName(kind uint16) string {
	switch kind {
	case KindLotSnapshot:
		return "lot_snapshot"
	case KindAllocate:
		return "allocate"
	case KindQuote:
		return "quote"
	case KindRelease:
		return "release"
	case KindPartialAnswer:
		return "partial_answer"
	case KindReply:
		return "reply"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	Kind    uint16
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: kind=%s: %s", KindName(e.Kind), e.Reason)
	}
	return fmt.Sprintf("schema: kind=%s field=%d: %s", KindName(e.Kind), e.FieldID, e.Reason)
}

// The snapshot payload is CBOR, not TLV, so it has no field requirements.
var requirements = map[uint16][]Requirement{
	KindLotSnapshot: {},
	KindAllocate: {
		{FieldLotID, tlv.TypeU32},
		{FieldSpaces, tlv.TypeU32},
		{FieldDeparture, tlv.TypeString},
	},
	KindQuote: {
		{FieldReservationID, tlv.TypeU64},
	},
	KindRelease: {
		{FieldReservationID, tlv.TypeU64},
	},
	KindPartialAnswer: {
		{FieldAccept, tlv.TypeBool},
	},
	KindReply: {
		{FieldStatus, tlv.TypeString},
	},
}

// optional fields still have a fixed type when present.
var optional = map[uint16][]Requirement{
	KindAllocate: {
		{FieldArrival, tlv.TypeI64},
		{FieldVehicles, tlv.TypeBytes},
	},
	KindReply: {
		{FieldReservationID, tlv.TypeU64},
		{FieldSpaces, tlv.TypeU32},
		{FieldAvailable, tlv.TypeU32},
		{FieldAmount, tlv.TypeI64},
		{FieldMessage, tlv.TypeString},
	},
}

// Known reports whether kind is part of the protocol.
func Known(kind uint16) bool {
	_, ok := requirements[kind]
	return ok
}

// Validate enforces required fields and field types for a message kind.
// Unknown field ids are ignored.
func Validate(kind uint16, fields tlv.Fields) error {
	reqs, ok := requirements[kind]
	if !ok {
		log.Debug().Uint16("kind", kind).Msg("schema.Validate unknown kind")
		return ValidationError{Kind: kind, Reason: "unknown kind"}
	}
	for _, req := range reqs {
		f, found := fields.Get(req.ID)
		if !found {
			log.Debug().Str("kind", KindName(kind)).Uint16("field", req.ID).Msg("schema.Validate missing field")
			return ValidationError{Kind: kind, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Str("kind", KindName(kind)).
				Uint16("field", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{Kind: kind, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, opt := range optional[kind] {
		if f, found := fields.Get(opt.ID); found && f.Type != opt.Type {
			return ValidationError{Kind: kind, FieldID: opt.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
