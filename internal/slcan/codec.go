// Package slcan implements the LAWICEL ASCII framing spoken by slcan
// USB adapters (CANable, USBtin and similar sticks).
package slcan

import (
	"bytes"
	"errors"
	"fmt"

	"go.einride.tech/can"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

const hexdig = "0123456789ABCDEF"

// maxRecord bounds how many bytes accumulate while waiting for a CR.
// Anything longer is line noise from a misconfigured adapter.
const maxRecord = 64

// ErrMalformed reports a record that does not follow the framing.
var ErrMalformed = errors.New("slcan: malformed record")

// Encode renders fr as one transmit record terminated with CR.
// Standard identifiers use 't' with three id digits, extended ones 'T'
// with eight; remote frames use 'r'/'R' and carry no data.
func Encode(fr can.Frame) []byte {
	kind := byte('t')
	idLen := 3
	if fr.IsExtended {
		kind = 'T'
		idLen = 8
	}
	if fr.IsRemote {
		kind ^= 't' ^ 'r' // t->r, T->R
	}
	out := make([]byte, 0, 1+idLen+1+2*int(fr.Length)+1)
	out = append(out, kind)
	for shift := 4 * (idLen - 1); shift >= 0; shift -= 4 {
		out = append(out, hexdig[(fr.ID>>uint(shift))&0xF])
	}
	out = append(out, hexdig[fr.Length&0xF])
	if !fr.IsRemote {
		for i := 0; i < int(fr.Length); i++ {
			b := fr.Data[i]
			out = append(out, hexdig[b>>4], hexdig[b&0xF])
		}
	}
	return append(out, '\r')
}

// Decode parses one record without its CR terminator.
func Decode(rec []byte) (can.Frame, error) {
	if len(rec) == 0 {
		return can.Frame{}, ErrMalformed
	}
	var fr can.Frame
	idLen := 3
	switch rec[0] {
	case 't':
	case 'T':
		idLen = 8
		fr.IsExtended = true
	case 'r':
		fr.IsRemote = true
	case 'R':
		idLen = 8
		fr.IsExtended = true
		fr.IsRemote = true
	default:
		return can.Frame{}, ErrMalformed
	}
	if len(rec) < 1+idLen+1 {
		return can.Frame{}, ErrMalformed
	}
	id, ok := parseHex(rec[1 : 1+idLen])
	if !ok {
		return can.Frame{}, ErrMalformed
	}
	fr.ID = id
	n, ok := hexVal(rec[1+idLen])
	if !ok || n > 8 {
		return can.Frame{}, ErrMalformed
	}
	fr.Length = uint8(n)
	if fr.IsRemote {
		if len(rec) != 1+idLen+1 {
			return can.Frame{}, ErrMalformed
		}
		return fr, nil
	}
	if len(rec) != 1+idLen+1+2*int(n) {
		return can.Frame{}, ErrMalformed
	}
	for i := 0; i < int(n); i++ {
		hi, ok1 := hexVal(rec[1+idLen+1+2*i])
		lo, ok2 := hexVal(rec[1+idLen+1+2*i+1])
		if !ok1 || !ok2 {
			return can.Frame{}, ErrMalformed
		}
		fr.Data[i] = byte(hi<<4 | lo)
	}
	return fr, nil
}

// DecodeStream drains complete records from acc, invoking emit for each
// decoded frame. Incomplete trailing bytes stay buffered for the next
// read. Transmit acknowledgements from the adapter are skipped; any
// other undecodable record counts as malformed input.
func DecodeStream(acc *bytes.Buffer, emit func(can.Frame)) {
	for {
		data := acc.Bytes()
		i := bytes.IndexByte(data, '\r')
		if i < 0 {
			if acc.Len() > maxRecord {
				metrics.IncMalformed()
				acc.Reset()
			}
			return
		}
		rec := make([]byte, i)
		copy(rec, data[:i])
		acc.Next(i + 1)
		if len(rec) == 0 {
			continue
		}
		switch rec[0] {
		case 't', 'T', 'r', 'R':
			fr, err := Decode(rec)
			if err != nil {
				metrics.IncMalformed()
				continue
			}
			emit(fr)
		case 'z', 'Z':
			// transmit ack, nothing to do
		default:
			metrics.IncMalformed()
		}
	}
}

// SetupSequence returns the adapter open sequence: close any stale
// channel, set the bitrate code, open the channel. Codes run 0
// (10 kbit/s) through 8 (1 Mbit/s); out-of-range values fall back to
// code 6, the 500 kbit/s bus the cart uses.
func SetupSequence(bitrate int) []byte {
	if bitrate < 0 || bitrate > 8 {
		bitrate = 6
	}
	return []byte(fmt.Sprintf("C\rS%d\rO\r", bitrate))
}

// CloseSequence returns the channel close command.
func CloseSequence() []byte { return []byte("C\r") }

func hexVal(b byte) (uint32, bool) {
	switch {
	case b >= '0' && b <= '9':
		return uint32(b - '0'), true
	case b >= 'A' && b <= 'F':
		return uint32(b-'A') + 10, true
	case b >= 'a' && b <= 'f':
		return uint32(b-'a') + 10, true
	}
	return 0, false
}

func parseHex(p []byte) (uint32, bool) {
	var v uint32
	for _, b := range p {
		d, ok := hexVal(b)
		if !ok {
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}
