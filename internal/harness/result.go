package harness

import (
	"time"

	"github.com/google/uuid"
	"github.com/networkservicemesh/dnsdiffuzz/internal/coverage"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/pkg/errors"
)

// FailureKind distinguishes why a run did not complete cleanly: subprocess
// crash, control-socket disconnect, coverage-read error, and
// response-deadline expiry are kept distinct (spec §4.3, §7).
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureStartupFailed
	FailureResolverCrash
	FailureControlProtocol
	FailureResponseDeadline
	FailureCoverageRead
	FailureCodecError
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureStartupFailed:
		return "startup_failed"
	case FailureResolverCrash:
		return "resolver_crash"
	case FailureControlProtocol:
		return "control_protocol"
	case FailureResponseDeadline:
		return "response_deadline"
	case FailureCoverageRead:
		return "coverage_read"
	case FailureCodecError:
		return "codec_error"
	default:
		return "unknown"
	}
}

// Sentinel causes, matched with errors.Cause by callers that need to
// branch on kind without parsing message text (spec §7).
var (
	ErrCaseTimeout     = errors.New("harness: case timed out")
	ErrResolverCrash   = errors.New("harness: resolver process exited unexpectedly")
	ErrControlProtocol = errors.New("harness: control protocol failure")
	ErrCodecError      = errors.New("harness: malformed wire data")
)

// Result is everything one resolver's run of one case produced, joined by
// CaseUUID to its counterpart resolvers' results for differencing (spec
// §4.3: "Results are joined by case uuid").
type Result struct {
	ResolverID     string
	CaseUUID       uuid.UUID
	ClientResponse *dnsutil.WireMessage
	CacheResponses []*dnsutil.WireMessage
	Exchanges      []dnsutil.Exchange
	CoverageDelta  coverage.Delta
	FailureKind    FailureKind
	FinalState     string
	Duration       time.Duration
}

// Completed reports whether the run is one the differ and the corpus
// accept: clean completion (FailureNone) or a response-deadline expiry
// (spec §4.3: "Only ResponseDeadline and clean completion feed the
// differ").
func (r *Result) Completed() bool {
	return r.FailureKind == FailureNone || r.FailureKind == FailureResponseDeadline
}
