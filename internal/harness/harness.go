package harness

import (
	"context"
	"time"

	"github.com/miekg/dns"
	ot "github.com/opentracing/opentracing-go"
	otext "github.com/opentracing/opentracing-go/ext"
	"github.com/networkservicemesh/dnsdiffuzz/internal/authns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/coverage"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzproto"
	"github.com/pkg/errors"
)

const (
	dialTimeout             = 2 * time.Second
	controlWarmup           = 5 * time.Second
	warmupPoll              = 50 * time.Millisecond
	defaultResponseDeadline = 1500 * time.Millisecond
)

// Harness drives one resolver process through repeated case runs. It
// owns the subprocess and its control-protocol connection across runs,
// reconnecting only when ensureConnected finds them gone, and shares one
// *authns.Stack instance across runs since that stack is already scoped
// one-per-resolver (spec §4.3: "each with its own authoritative stack
// instance").
type Harness struct {
	spec             ResolverSpec
	stack            *authns.Stack
	proc             *process
	control          *fuzzproto.Client
	responseDeadline time.Duration
}

// New builds a harness for one resolver, bound to its own stack.
func New(spec ResolverSpec, stack *authns.Stack) *Harness {
	return &Harness{spec: spec, stack: stack, responseDeadline: defaultResponseDeadline}
}

// Close stops the resolver subprocess and its control connection.
func (h *Harness) Close() {
	if h.control != nil {
		_ = h.control.Close()
		h.control = nil
	}
	if h.proc != nil {
		h.proc.kill()
		h.proc = nil
	}
}

// Run executes one case against h's resolver, following the state
// machine of spec §4.3. index identifies this case's slot within the
// fuzz. namespace for this resolver's stack.
func (h *Harness) Run(ctx context.Context, index int, c *fuzzcase.Case) (*Result, error) {
	span := ot.SpanFromContext(ctx)
	if span != nil {
		childSpan := span.Tracer().StartSpan("harness.run", ot.ChildOf(span.Context()))
		otext.PeerAddress.Set(childSpan, h.spec.ID)
		ctx = ot.ContextWithSpan(ctx, childSpan)
		defer childSpan.Finish()
	}

	start := time.Now()
	st := stateIdle
	res := &Result{ResolverID: h.spec.ID, CaseUUID: c.UUID}

	if err := h.ensureConnected(); err != nil {
		res.FailureKind = FailureStartupFailed
		res.FinalState = st.String()
		return res, errors.Wrap(err, "CONTROL_CONNECTED")
	}
	st = stateControlConnected

	if err := h.control.Reset(); err != nil {
		res.FailureKind = FailureControlProtocol
		res.FinalState = st.String()
		return res, errors.Wrap(ErrControlProtocol, err.Error())
	}
	st = stateCoverageReset
	st = stateReady

	overlay := authns.NewOverlay(index, c.ServerResponses)
	h.stack.InstallCase(overlay)
	elog := h.stack.BeginExchangeLog(start)

	query, err := c.ClientQuery.Parse()
	if err != nil {
		res.FailureKind = FailureCodecError
		res.FinalState = st.String()
		return res, errors.Wrap(ErrCodecError, err.Error())
	}

	conn, err := dns.DialTimeout("udp", "127.0.0.1:53", dialTimeout)
	if err != nil {
		res.FailureKind = FailureResolverCrash
		res.FinalState = st.String()
		return res, errors.Wrap(ErrResolverCrash, err.Error())
	}
	defer func() { _ = conn.Close() }()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	QueryCount.WithLabelValues(h.spec.ID).Inc()
	if err := conn.WriteMsg(query); err != nil {
		res.FailureKind = FailureResolverCrash
		res.FinalState = st.String()
		return res, errors.Wrap(ErrResolverCrash, err.Error())
	}
	st = stateClientQuerySent
	st = stateAwaitingResolverQueries

	deadline := start.Add(h.responseDeadline)
	var reply *dns.Msg
	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			break
		}
		msg, err := conn.ReadMsg()
		if err != nil {
			break
		}
		st = stateAnsweringResolverQueries
		if msg.Response && msg.Id == query.Id {
			reply = msg
			break
		}
	}
	if reply != nil {
		st = stateClientResponseReceived
		res.ClientResponse = dnsutil.FromMsg(reply)
	} else {
		st = stateTimeout
		res.FailureKind = FailureResponseDeadline
	}

	st = stateCacheChecks
	h.stack.SetRefuseAll(true)
	for _, cc := range c.CacheChecks {
		ccMsg, err := cc.Parse()
		if err != nil {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(dialTimeout)); err != nil {
			continue
		}
		if err := conn.WriteMsg(ccMsg); err != nil {
			continue
		}
		if err := conn.SetReadDeadline(time.Now().Add(h.responseDeadline)); err != nil {
			continue
		}
		ccReply, err := conn.ReadMsg()
		if err != nil {
			continue
		}
		res.CacheResponses = append(res.CacheResponses, dnsutil.FromMsg(ccReply))
	}
	h.stack.SetRefuseAll(false)

	st = stateCoverageRead
	after, err := h.control.Snapshot()
	if err != nil {
		res.FailureKind = FailureCoverageRead
		res.FinalState = st.String()
		return res, errors.Wrap(ErrControlProtocol, err.Error())
	}
	before := make(coverage.Bitmap, len(after))
	res.CoverageDelta = coverage.DiffFrom(before, coverage.Bitmap(after))

	st = stateDone
	res.FinalState = st.String()
	res.Exchanges = elog.Entries()
	res.Duration = time.Since(start)
	RunDuration.WithLabelValues(h.spec.ID).Observe(res.Duration.Seconds())
	return res, nil
}

// ensureConnected spawns the resolver subprocess on first use and
// (re)dials its control socket within a bounded warmup window (spec
// §4.3: "CONTROL_CONNECTED requires the coverage shim's control socket
// to accept within a bounded warmup window").
func (h *Harness) ensureConnected() error {
	if h.control != nil {
		if err := h.control.Ping(); err == nil {
			return nil
		}
		_ = h.control.Close()
		h.control = nil
	}
	if h.proc == nil {
		proc, err := spawn(h.spec)
		if err != nil {
			return err
		}
		h.proc = proc
	}

	deadline := time.Now().Add(controlWarmup)
	var lastErr error
	for time.Now().Before(deadline) {
		c, err := fuzzproto.Dial(h.spec.ControlAddr, dialTimeout)
		if err != nil {
			lastErr = err
			time.Sleep(warmupPoll)
			continue
		}
		if _, err := c.Hello(); err != nil {
			lastErr = err
			_ = c.Close()
			time.Sleep(warmupPoll)
			continue
		}
		h.control = c
		return nil
	}
	return errors.Wrap(lastErr, "control socket did not come up within warmup window")
}
