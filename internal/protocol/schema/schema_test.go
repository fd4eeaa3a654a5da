package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/parkd/internal/protocol/tlv"
	"github.com/danmuck/parkd/internal/testutil/testlog"
)

func TestValidateAllocateRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := tlv.Fields{
		tlv.U32(FieldLotID, 1),
		tlv.U32(FieldSpaces, 4),
		tlv.String(FieldDeparture, "18:00"),
	}
	if err := Validate(KindAllocate, fields); err != nil {
		t.Fatalf("validate allocate: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := tlv.Fields{
		tlv.U64(FieldReservationID, 9),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(KindQuote, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := tlv.Fields{tlv.U32(FieldLotID, 1)}
	err := Validate(KindAllocate, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if ve.FieldID != FieldSpaces || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := tlv.Fields{tlv.U32(FieldReservationID, 3)}
	err := Validate(KindRelease, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.FieldID != FieldReservationID || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateOptionalFieldType(t *testing.T) {
	testlog.Start(t)
	fields := tlv.Fields{
		tlv.String(FieldStatus, "quote"),
		tlv.U32(FieldAmount, 100),
	}
	err := Validate(KindReply, fields)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.FieldID != FieldAmount {
		t.Fatalf("expected amount type mismatch, got %v", err)
	}
}

func TestValidateUnknownKind(t *testing.T) {
	testlog.Start(t)
	if Known(42) {
		t.Fatalf("kind 42 must be unknown")
	}
	err := Validate(42, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown kind" {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
	if KindName(42) != "unknown(42)" {
		t.Fatalf("unexpected kind name: %q", KindName(42))
	}
}
