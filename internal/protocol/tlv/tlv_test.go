package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		U32(1, 7),
		String(2, "08:30"),
		I64(3, -42),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(out))
	}
	if out[3].ID != 9999 || out[3].Type != TypeBytes || !bytes.Equal(out[3].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[3])
	}
	if v, err := out.U32(1); err != nil || v != 7 {
		t.Fatalf("u32 got=%d err=%v", v, err)
	}
	if v, err := out.String(2); err != nil || v != "08:30" {
		t.Fatalf("string got=%q err=%v", v, err)
	}
	if v, err := out.I64(3); err != nil || v != -42 {
		t.Fatalf("i64 got=%d err=%v", v, err)
	}
}

func TestTypedAccessorsRejectMismatch(t *testing.T) {
	fs := Fields{U64(1, 5), Bool(2, true), {ID: 3, Type: TypeBool, Value: []byte{2}}}
	if _, err := fs.U32(1); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := fs.String(7); !errors.Is(err, ErrFieldMissing) {
		t.Fatalf("expected ErrFieldMissing, got %v", err)
	}
	if v, err := fs.Bool(2); err != nil || !v {
		t.Fatalf("bool got=%v err=%v", v, err)
	}
	if _, err := fs.Bool(3); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for bad bool, got %v", err)
	}
	short := Fields{{ID: 4, Type: TypeU64, Value: []byte{1, 2}}}
	if _, err := short.U64(4); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for short u64, got %v", err)
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestBytesAccessorCopies(t *testing.T) {
	fs := Fields{Bytes(1, []byte{1, 2, 3})}
	b, err := fs.Bytes(1)
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	b[0] = 9
	again, _ := fs.Bytes(1)
	if again[0] != 1 {
		t.Fatalf("accessor leaked internal buffer")
	}
}
