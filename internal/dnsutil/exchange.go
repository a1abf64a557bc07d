package dnsutil

import (
	"net"
	"strconv"
	"sync"
	"time"

	tap "github.com/dnstap/golang-dnstap"
)

// Exchange is one (from, to, ts, bytes) tuple recorded while a resolver
// talks to the authoritative stack (spec §3, FuzzResult.fuzzee_queries).
type Exchange struct {
	From      net.Addr
	To        net.Addr
	Offset    time.Duration
	Message   *WireMessage
	IsQuery   bool
}

// ExchangeLog appends exchanges in arrival order and can render itself as
// a sequence of dnstap frames (DnstapFrames). dnstap.Message is already a
// teacher dependency (utils.go's toDnstap). The archiver does not write
// these frames: diffs/<fingerprint>/ holds only case.postcard and
// report.txt.
type ExchangeLog struct {
	mu      sync.Mutex
	start   time.Time
	entries []Exchange
}

// NewExchangeLog creates a log whose offsets are measured from start.
func NewExchangeLog(start time.Time) *ExchangeLog {
	return &ExchangeLog{start: start}
}

// Append records one exchange, computing its offset from the log's start time.
func (l *ExchangeLog) Append(from, to net.Addr, msg *WireMessage, isQuery bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Exchange{
		From:    from,
		To:      to,
		Offset:  time.Since(l.start),
		Message: msg,
		IsQuery: isQuery,
	})
}

// Entries returns a snapshot copy of the recorded exchanges.
func (l *ExchangeLog) Entries() []Exchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Exchange, len(l.entries))
	copy(out, l.entries)
	return out
}

// DnstapFrames renders the log as a sequence of dnstap messages suitable
// for archival alongside the postcard-encoded case.
func (l *ExchangeLog) DnstapFrames() []*tap.Message {
	entries := l.Entries()
	frames := make([]*tap.Message, 0, len(entries))
	for _, e := range entries {
		m := new(tap.Message)
		typ := tap.Message_FORWARDER_QUERY
		if !e.IsQuery {
			typ = tap.Message_FORWARDER_RESPONSE
		}
		m.Type = &typ
		if raw := e.Message.Bytes(); len(raw) > 0 {
			if e.IsQuery {
				m.QueryMessage = raw
			} else {
				m.ResponseMessage = raw
			}
		}
		setAddrFields(m, e.From, e.To)
		frames = append(frames, m)
	}
	return frames
}

func setAddrFields(m *tap.Message, from, to net.Addr) {
	if from == nil || to == nil {
		return
	}
	host, portStr, err := net.SplitHostPort(from.String())
	if err != nil {
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		return
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return
	}
	p := uint32(port)
	if ip4 := ip.To4(); ip4 != nil {
		m.QueryAddress = []byte(ip4)
	} else {
		m.QueryAddress = []byte(ip)
	}
	m.QueryPort = &p
}
