// Package g711 converts between ITU-T G.711 µ-law companded audio and
// 16-bit linear PCM. Telephony media streams carry 8 kHz mono µ-law;
// the voice agent consumes and produces raw little-endian PCM16 at the
// same rate, so both pump directions pass through this package.
//
// All functions are pure and safe for concurrent use.
package g711

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedAudio indicates a PCM buffer whose length is not a whole
// number of 16-bit samples.
var ErrMalformedAudio = errors.New("malformed audio: pcm length not sample-aligned")

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawToLinear expands a single µ-law byte to a linear PCM16 sample.
func MuLawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + muLawBias
	value <<= uint(exp)
	value -= muLawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// LinearToMuLaw compands a linear PCM16 sample to a single µ-law byte.
func LinearToMuLaw(sample int16) byte {
	sign := byte(0)
	value := int(sample)
	if value < 0 {
		value = -value
		sign = 0x80
	}
	if value > muLawClip {
		value = muLawClip
	}
	value += muLawBias

	exp := byte(7)
	for mask := 0x4000; value&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := byte((value >> (uint(exp) + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}

// DecodeMuLaw expands a µ-law byte buffer to little-endian PCM16.
// Every input byte maps to exactly one output sample; there is no
// error case for any byte value.
func DecodeMuLaw(companded []byte) []byte {
	pcm := make([]byte, len(companded)*2)
	for i, u := range companded {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(MuLawToLinear(u)))
	}
	return pcm
}

// EncodeMuLaw compands a little-endian PCM16 buffer to µ-law. The input
// must be a whole number of samples; odd lengths return ErrMalformedAudio.
func EncodeMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrMalformedAudio
	}
	companded := make([]byte, len(pcm)/2)
	for i := range companded {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		companded[i] = LinearToMuLaw(sample)
	}
	return companded, nil
}
