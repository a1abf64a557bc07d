package dnsutil

import "github.com/miekg/dns"

// WireMessage keeps the raw wire bytes of a DNS message as the source of
// truth and lazily materializes the structured *dns.Msg view on first
// access. A malformed message still round-trips byte-identical through
// Bytes even if Parse fails, which is what lets deliberately broken fuzz
// cases survive the codec (spec §4.1, §9).
type WireMessage struct {
	raw       []byte
	parsed    *dns.Msg
	parseErr  error
	attempted bool
}

// NewWireMessage wraps already-packed wire bytes.
func NewWireMessage(raw []byte) *WireMessage {
	return &WireMessage{raw: raw}
}

// FromMsg packs msg and wraps the result. Packing failures are swallowed
// into the lazily-reported parse error path so callers of Bytes never see
// a different error surface than callers of Parse.
func FromMsg(msg *dns.Msg) *WireMessage {
	raw, err := msg.Pack()
	if err != nil {
		return &WireMessage{parsed: msg, parseErr: err, attempted: true}
	}
	return &WireMessage{raw: raw, parsed: msg, attempted: true}
}

// Bytes returns the original wire bytes.
func (w *WireMessage) Bytes() []byte {
	return w.raw
}

// Parse returns the structured view, parsing lazily and caching both the
// result and any error.
func (w *WireMessage) Parse() (*dns.Msg, error) {
	if !w.attempted {
		w.attempted = true
		m := new(dns.Msg)
		if err := m.Unpack(w.raw); err != nil {
			w.parseErr = err
		} else {
			w.parsed = m
		}
	}
	return w.parsed, w.parseErr
}

// Clone deep-copies the wrapper so mutation catalog entries can modify a
// parsed copy without aliasing the parent case (spec §4.6, copy-on-write).
func (w *WireMessage) Clone() *WireMessage {
	raw := make([]byte, len(w.raw))
	copy(raw, w.raw)
	clone := &WireMessage{raw: raw}
	if w.parsed != nil {
		clone.parsed = w.parsed.Copy()
		clone.attempted = true
	}
	return clone
}
