package authns

import (
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/pkg/errors"
)

var log = dnsutil.NewLogger("authns")

// Stack is the in-process authoritative nameserver stack bound across
// Addrs, serving the static base tree plus whatever per-case Overlay
// is installed over fuzz. (spec §4.2). One Stack instance backs one
// resolver's run of one case at a time.
type Stack struct {
	mu       sync.RWMutex
	zones    map[string]*zone
	overlay  *Overlay
	servers  []*dns.Server
	exchange *dnsutil.ExchangeLog
	refuse   bool
}

// NewStack builds a stack with the static tree loaded and no overlay
// installed; call InstallCase before serving fuzz. traffic.
func NewStack(exchange *dnsutil.ExchangeLog) *Stack {
	return &Stack{zones: NewBaseTree(), exchange: exchange}
}

// InstallCase replaces the fuzz. overlay for a new case run, wiring
// the NNNN.fuzz. delegation into the fuzzAddr zone so a resolver
// following the referral lands on fuzzLeafAddr's scripted data.
func (s *Stack) InstallCase(o *Overlay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = o
	fz := s.zones[fuzzAddr]
	for _, rr := range o.delegationRRs() {
		fz.add(rr)
	}
}

// BeginExchangeLog starts a fresh exchange log for one case's run,
// offsets measured from start, and installs it as the log every bound
// listener appends to.
func (s *Stack) BeginExchangeLog(start time.Time) *dnsutil.ExchangeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchange = dnsutil.NewExchangeLog(start)
	return s.exchange
}

// SetRefuseAll toggles the CACHE_CHECKS phase's policy: while on, every
// address refuses every query regardless of zone or overlay contents, so
// a resolver that answers a cache check without requerying the stack
// proves it served the answer from cache (spec §4.3).
func (s *Stack) SetRefuseAll(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = on
}

func (s *Stack) refusingAll() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refuse
}

func (s *Stack) currentOverlay() *Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay
}

func (s *Stack) zoneAt(addr string) *zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zones[addr]
}

// Zones exposes the stack's zone table so a caller can layer extra
// authoritative data onto it via SeedExtra before ListenAndServe, without
// this package depending on whatever config format produced that data.
func (s *Stack) Zones() map[string]*zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zones
}

func (s *Stack) currentExchangeLog() *dnsutil.ExchangeLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exchange
}

// ListenAndServe binds UDP (and passively TCP) on every address in
// Addrs (spec §4.2). It returns once every UDP listener is up; the TCP
// listeners start in the background and a TCP bind failure is only
// logged. Call Shutdown to stop them.
func (s *Stack) ListenAndServe() error {
	ready := make(chan error, len(Addrs)*2)

	for _, addr := range Addrs {
		h := loggingHandler{h: &handler{stack: s, addr: addr}, stack: s}
		udp := &dns.Server{Addr: addr + ":53", Net: "udp", Handler: h}
		tcp := &dns.Server{Addr: addr + ":53", Net: "tcp", Handler: h}
		udp.NotifyStartedFunc = func() { ready <- nil }
		s.servers = append(s.servers, udp, tcp)
		go func(srv *dns.Server) {
			if err := srv.ListenAndServe(); err != nil {
				ready <- errors.Wrapf(err, "authns: listen on %s/%s", srv.Addr, srv.Net)
			}
		}(udp)
		go func(srv *dns.Server) {
			if err := srv.ListenAndServe(); err != nil {
				log.WithError(err).Debug("tcp listener exited")
			}
		}(tcp)
	}

	timeout := time.After(5 * time.Second)
	for i := 0; i < len(Addrs); i++ {
		select {
		case err := <-ready:
			if err != nil {
				return err
			}
		case <-timeout:
			return errors.New("authns: timed out waiting for listeners")
		}
	}
	return nil
}

// Shutdown gracefully stops every bound listener.
func (s *Stack) Shutdown() {
	for _, srv := range s.servers {
		_ = srv.Shutdown()
	}
}

// loggingHandler wraps handler to append every exchange to the
// ExchangeLog (spec §4.2: "the stack appends every (from, to, ts,
// bytes) to the case's query log").
type loggingHandler struct {
	h     *handler
	stack *Stack
}

func (lh loggingHandler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	elog := lh.stack.currentExchangeLog()
	if elog != nil {
		elog.Append(w.RemoteAddr(), w.LocalAddr(), dnsutil.FromMsg(r), true)
	}
	res := lh.h.answer(r)
	if res.drop {
		return
	}
	switch {
	case res.raw != nil:
		if elog != nil {
			elog.Append(w.LocalAddr(), w.RemoteAddr(), dnsutil.NewWireMessage(res.raw), false)
		}
		_, _ = w.Write(res.raw)
	case res.msg != nil:
		if elog != nil {
			elog.Append(w.LocalAddr(), w.RemoteAddr(), dnsutil.FromMsg(res.msg), false)
		}
		_ = w.WriteMsg(res.msg)
	}
}
