package protocol

import (
	"sort"
	"strings"
	"sync"
)

// Fragmenter splits oversized frames into fragment packets. Packet ids come
// from a cycling counter, so they are only unique within the window a
// receiver keeps fragments around, which is all reassembly needs.
type Fragmenter struct {
	mu     sync.Mutex
	nextID uint16
}

// Frames encodes a packet into one or more wire frames. Packets whose frame
// stays under FrameSizeLimit produce a single frame; larger ones produce a
// sequence of fragment frames in ascending sequence order.
func (f *Fragmenter) Frames(p Packet) ([]string, error) {
	frame, err := EncodeFrame(p)
	if err != nil {
		return nil, err
	}
	if len(frame) < FrameSizeLimit {
		return []string{frame}, nil
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.mu.Unlock()

	var frames []string
	for seq, i := 0, 0; i < len(frame); seq, i = seq+1, i+FragmentDataSize {
		end := i + FragmentDataSize
		if end > len(frame) {
			end = len(frame)
		}
		fragFrame, err := EncodeFrame(FragmentPacket{
			ID:             id,
			SequenceNumber: seq,
			IsLast:         end == len(frame),
			Data:           frame[i:end],
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, fragFrame)
	}
	return frames, nil
}

// Reassembler collects fragments per packet id and rebuilds the original
// frame once every sequence number up to the last-flagged one has arrived.
// Fragments may arrive in any order. State for an id is discarded as soon as
// its frame is rebuilt; ids that never complete simply linger, which matches
// the protocol's silent-absorption rule for stalled senders.
type Reassembler struct {
	pending map[uint16][]FragmentPacket
}

func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[uint16][]FragmentPacket)}
}

// Add stores a fragment and attempts reassembly. When the fragment completes
// its packet, the original frame is returned and ok is true.
func (r *Reassembler) Add(f FragmentPacket) (frame string, ok bool) {
	fragments := r.pending[f.ID]
	for _, existing := range fragments {
		if existing.SequenceNumber == f.SequenceNumber {
			return "", false
		}
	}
	fragments = append(fragments, f)
	r.pending[f.ID] = fragments

	last := -1
	for _, frag := range fragments {
		if frag.IsLast {
			last = frag.SequenceNumber
		}
	}
	if last < 0 || len(fragments) != last+1 {
		return "", false
	}
	seen := make([]bool, last+1)
	for _, frag := range fragments {
		if frag.SequenceNumber > last {
			return "", false
		}
		seen[frag.SequenceNumber] = true
	}
	for _, s := range seen {
		if !s {
			return "", false
		}
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].SequenceNumber < fragments[j].SequenceNumber
	})
	var sb strings.Builder
	for _, frag := range fragments {
		sb.WriteString(frag.Data)
	}
	delete(r.pending, f.ID)
	return sb.String(), true
}
