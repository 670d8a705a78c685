package server

import (
	"encoding/json"
	"log/slog"

	"parley/internal/protocol"
)

type handlerFunc func(body string)

// dispatcher routes frames to handlers by prefix. Unknown prefixes are
// ignored so newer clients can talk to older servers. It also owns this
// connection's fragment reassembly, feeding rebuilt frames back through
// dispatch.
type dispatcher struct {
	handlers map[string]handlerFunc
	reasm    *protocol.Reassembler
	log      *slog.Logger
}

func newDispatcher(log *slog.Logger) *dispatcher {
	return &dispatcher{
		handlers: make(map[string]handlerFunc),
		reasm:    protocol.NewReassembler(),
		log:      log,
	}
}

func (d *dispatcher) register(prefix string, h handlerFunc) {
	d.handlers[prefix] = h
}

func (d *dispatcher) dispatch(f protocol.Frame) {
	if f.Prefix == protocol.PrefixFragment {
		var frag protocol.FragmentPacket
		if err := json.Unmarshal([]byte(f.Body), &frag); err != nil {
			d.log.Debug("unparseable fragment", slog.Any("error", err))
			return
		}
		frame, ok := d.reasm.Add(frag)
		if !ok {
			return
		}
		parsed, err := protocol.ParseFrame(frame)
		if err != nil {
			d.log.Debug("reassembled frame is malformed", slog.Any("error", err))
			return
		}
		d.dispatch(parsed)
		return
	}

	h, ok := d.handlers[f.Prefix]
	if !ok {
		return
	}
	h(f.Body)
}
