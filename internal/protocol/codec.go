package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// A frame on the wire looks like "/<prefix> <byteLength> <body>". Frames at
// or above FrameSizeLimit are split into fragments of FragmentDataSize bytes,
// each sent as its own /fragment frame.
const (
	FrameSizeLimit   = 4096
	FragmentDataSize = 3596
)

// ErrMalformedFrame reports bytes that cannot belong to a valid frame. The
// decoder drops the offending bytes and resynchronizes on the next '/'.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one complete prefix/body unit pulled off the stream.
type Frame struct {
	Prefix string
	Body   string
}

// EncodeFrame serializes a packet into its wire frame.
func EncodeFrame(p Packet) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", p.Prefix(), err)
	}
	return p.Prefix() + " " + strconv.Itoa(len(body)) + " " + string(body), nil
}

// ParseFrame splits a complete frame string back into prefix and body. Used
// for frames that were reassembled from fragments and are known to be whole.
func ParseFrame(s string) (Frame, error) {
	var d Decoder
	frames, err := d.Feed([]byte(s))
	if err != nil {
		return Frame{}, err
	}
	if len(frames) != 1 || d.buffered() != 0 {
		return Frame{}, ErrMalformedFrame
	}
	return frames[0], nil
}

// Decoder accumulates bytes from a stream and extracts complete frames. A
// partial frame is kept across Feed calls until the rest of it arrives;
// feeding one byte at a time yields the same frames as feeding whole buffers.
type Decoder struct {
	pending []byte
}

// Feed appends data to the accumulator and returns every complete frame it
// now holds, in arrival order. Malformed bytes are discarded up to the next
// possible frame start and reported as ErrMalformedFrame alongside whatever
// frames were still recovered.
func (d *Decoder) Feed(data []byte) ([]Frame, error) {
	d.pending = append(d.pending, data...)
	var frames []Frame
	var malformed bool
	for {
		frame, ok, err := d.next()
		if err != nil {
			malformed = true
			continue
		}
		if !ok {
			break
		}
		frames = append(frames, frame)
	}
	if malformed {
		return frames, ErrMalformedFrame
	}
	return frames, nil
}

func (d *Decoder) buffered() int { return len(d.pending) }

// next attempts to extract one frame from the front of the accumulator. It
// returns ok=false when the accumulator holds only an incomplete frame.
func (d *Decoder) next() (Frame, bool, error) {
	if len(d.pending) == 0 {
		return Frame{}, false, nil
	}
	if d.pending[0] != '/' {
		d.resync()
		return Frame{}, false, ErrMalformedFrame
	}
	sp1 := bytes.IndexByte(d.pending, ' ')
	if sp1 < 0 {
		return Frame{}, false, nil
	}
	rest := d.pending[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		return Frame{}, false, nil
	}
	length, err := strconv.Atoi(string(rest[:sp2]))
	if err != nil || length < 0 {
		d.pending = d.pending[1:]
		d.resync()
		return Frame{}, false, ErrMalformedFrame
	}
	body := rest[sp2+1:]
	if len(body) < length {
		return Frame{}, false, nil
	}
	frame := Frame{
		Prefix: string(d.pending[:sp1]),
		Body:   string(body[:length]),
	}
	d.pending = body[length:]
	return frame, true, nil
}

// resync drops buffered bytes up to the next '/' so a later frame can still
// be decoded after garbage.
func (d *Decoder) resync() {
	idx := bytes.IndexByte(d.pending, '/')
	if idx < 0 {
		d.pending = nil
		return
	}
	d.pending = d.pending[idx:]
}
