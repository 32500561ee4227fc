// Package codec frames raw PCM audio for the wire. Both the browser transport
// and the remote model transport exchange frames in this format, so encode and
// decode are exact inverses and the payload is carried losslessly.
package codec

import (
	"encoding/binary"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

// Wire layout, little-endian:
//
//	0:2   magic "NS"
//	2     version
//	3     flags (reserved, must be zero)
//	4:8   sample rate (Hz)
//	8:12  sequence number
//	12:16 payload length in bytes
//	16:   PCM16LE samples
const (
	headerSize = 16

	protocolVersion = 0x01
)

var magic = [2]byte{'N', 'S'}

// Encode serializes a frame into its wire representation. Zero-length frames
// are valid and encode to a bare header.
func Encode(frame entities.AudioFrame) ([]byte, error) {
	if frame.SampleRate <= 0 {
		return nil, &entities.CodecError{Reason: "sample rate must be positive"}
	}
	if len(frame.PCM)%2 != 0 {
		return nil, &entities.CodecError{Reason: "payload is not 16-bit aligned"}
	}

	buf := make([]byte, headerSize+len(frame.PCM))
	buf[0] = magic[0]
	buf[1] = magic[1]
	buf[2] = protocolVersion
	buf[3] = 0x00
	binary.LittleEndian.PutUint32(buf[4:8], uint32(frame.SampleRate))
	binary.LittleEndian.PutUint32(buf[8:12], frame.Seq)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(frame.PCM)))
	copy(buf[headerSize:], frame.PCM)
	return buf, nil
}

// Decode parses a wire buffer back into a frame. It fails with CodecError on
// truncated or malformed input and never mutates the input buffer.
func Decode(data []byte) (entities.AudioFrame, error) {
	if len(data) < headerSize {
		return entities.AudioFrame{}, &entities.CodecError{Reason: "buffer shorter than header"}
	}
	if data[0] != magic[0] || data[1] != magic[1] {
		return entities.AudioFrame{}, &entities.CodecError{Reason: "bad magic"}
	}
	if data[2] != protocolVersion {
		return entities.AudioFrame{}, &entities.CodecError{Reason: "unsupported version"}
	}

	sampleRate := binary.LittleEndian.Uint32(data[4:8])
	if sampleRate == 0 {
		return entities.AudioFrame{}, &entities.CodecError{Reason: "zero sample rate"}
	}
	seq := binary.LittleEndian.Uint32(data[8:12])
	payloadLen := binary.LittleEndian.Uint32(data[12:16])

	if int(payloadLen) != len(data)-headerSize {
		return entities.AudioFrame{}, &entities.CodecError{Reason: "payload length mismatch"}
	}
	if payloadLen%2 != 0 {
		return entities.AudioFrame{}, &entities.CodecError{Reason: "payload is not 16-bit aligned"}
	}

	pcm := make([]byte, payloadLen)
	copy(pcm, data[headerSize:])

	return entities.AudioFrame{
		PCM:        pcm,
		SampleRate: int(sampleRate),
		Seq:        seq,
	}, nil
}
