package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	frame := entities.AudioFrame{
		PCM:        []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80},
		SampleRate: 16000,
		Seq:        42,
	}

	wire, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !bytes.Equal(decoded.PCM, frame.PCM) {
		t.Errorf("PCM payload not preserved: got %v want %v", decoded.PCM, frame.PCM)
	}
	if decoded.SampleRate != frame.SampleRate {
		t.Errorf("sample rate: got %d want %d", decoded.SampleRate, frame.SampleRate)
	}
	if decoded.Seq != frame.Seq {
		t.Errorf("seq: got %d want %d", decoded.Seq, frame.Seq)
	}
}

func TestEncode_EmptyFrame(t *testing.T) {
	frame := entities.AudioFrame{SampleRate: 24000, Seq: 1}

	wire, err := Encode(frame)
	if err != nil {
		t.Fatalf("empty frame should encode: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("empty frame should decode: %v", err)
	}
	if !decoded.Empty() {
		t.Error("decoded frame should be empty")
	}
}

func TestDecode_Malformed(t *testing.T) {
	frame := entities.AudioFrame{PCM: []byte{0x01, 0x02}, SampleRate: 16000, Seq: 7}
	wire, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	cases := []struct {
		name string
		data []byte
	}{
		{"truncated header", wire[:8]},
		{"truncated payload", wire[:len(wire)-1]},
		{"bad magic", append([]byte{'X', 'Y'}, wire[2:]...)},
		{"bad version", append([]byte{'N', 'S', 0x09}, wire[3:]...)},
		{"empty buffer", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if err == nil {
				t.Fatal("expected decode error")
			}
			var codecErr *entities.CodecError
			if !errors.As(err, &codecErr) {
				t.Errorf("expected CodecError, got %T", err)
			}
		})
	}
}

func TestEncode_OddPayloadRejected(t *testing.T) {
	_, err := Encode(entities.AudioFrame{PCM: []byte{0x01}, SampleRate: 16000})
	if err == nil {
		t.Fatal("odd-length payload should be rejected")
	}
	var codecErr *entities.CodecError
	if !errors.As(err, &codecErr) {
		t.Errorf("expected CodecError, got %T", err)
	}
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	frame := entities.AudioFrame{PCM: []byte{0x10, 0x20}, SampleRate: 8000}
	wire, _ := Encode(frame)

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	wire[16] = 0xee
	if decoded.PCM[0] == 0xee {
		t.Error("decoded payload must not alias the wire buffer")
	}
}
