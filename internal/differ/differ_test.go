package differ

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
	"github.com/stretchr/testify/require"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func response(t *testing.T, id uint16, rcode int, answer, ns, extra []dns.RR) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.Id = id
	m.Response = true
	m.Rcode = rcode
	m.Answer = answer
	m.Ns = ns
	m.Extra = extra
	return m
}

func resultWithResponse(t *testing.T, resolverID string, m *dns.Msg) *harness.Result {
	t.Helper()
	return &harness.Result{ResolverID: resolverID, ClientResponse: dnsutil.FromMsg(m)}
}

func categories(items []DiffItem) []Category {
	out := make([]Category, len(items))
	for i, it := range items {
		out[i] = it.Category
	}
	return out
}

func TestDiffErrorClientNoRrInAnswer(t *testing.T) {
	a := resultWithResponse(t, "a", response(t, 1, dns.RcodeSuccess, nil, nil, nil))
	b := resultWithResponse(t, "b", response(t, 1, dns.RcodeSuccess,
		[]dns.RR{mustRR(t, "victim.net. 300 IN A 127.97.1.1")}, nil, nil))

	items, err := Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, categories(items), CategoryErrorClientNoRrInAnswer)
}

func TestDiffResolvedServFailOnNoData(t *testing.T) {
	a := resultWithResponse(t, "a", response(t, 1, dns.RcodeServerFailure, nil, nil, nil))
	b := resultWithResponse(t, "b", response(t, 1, dns.RcodeSuccess, nil, nil, nil))

	items, err := Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, categories(items), CategoryResolvedServFailOnNoData)
}

func TestDiffRrsetOrder(t *testing.T) {
	r1 := mustRR(t, "victim.net. 300 IN A 127.97.1.1")
	r2 := mustRR(t, "victim.net. 300 IN A 127.97.1.2")
	a := resultWithResponse(t, "a", response(t, 1, dns.RcodeSuccess, []dns.RR{r1, r2}, nil, nil))
	b := resultWithResponse(t, "b", response(t, 1, dns.RcodeSuccess, []dns.RR{r2, r1}, nil, nil))

	items, err := Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, categories(items), CategoryRrsetOrder)
	require.NotContains(t, categories(items), CategoryStructuralDifference)
}

func TestDiffNoEdnsSupport(t *testing.T) {
	opt := new(dns.OPT)
	opt.Hdr.Name = "."
	opt.Hdr.Rrtype = dns.TypeOPT
	a := resultWithResponse(t, "a", response(t, 1, dns.RcodeSuccess, nil, nil, []dns.RR{opt}))
	b := resultWithResponse(t, "b", response(t, 1, dns.RcodeSuccess, nil, nil, nil))

	items, err := Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, categories(items), CategoryNoEdnsSupport)
}

func TestDiffTrailingRetransmissions(t *testing.T) {
	q := new(dns.Msg)
	q.SetQuestion("0000.fuzz.", dns.TypeA)
	wire := dnsutil.FromMsg(q)

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40000}
	base := []dnsutil.Exchange{{From: addr, To: addr, Message: wire, IsQuery: true}}
	extra := append(append([]dnsutil.Exchange{}, base...), dnsutil.Exchange{From: addr, To: addr, Message: wire, IsQuery: true})

	a := resultWithResponse(t, "a", response(t, 1, dns.RcodeSuccess, nil, nil, nil))
	a.Exchanges = base
	b := resultWithResponse(t, "b", response(t, 1, dns.RcodeSuccess, nil, nil, nil))
	b.Exchanges = extra

	items, err := Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, categories(items), CategoryTrailingRetransmissions)
	require.NotContains(t, categories(items), CategoryStructuralDifference)
}

func TestDiffStructuralDifferenceCatchAll(t *testing.T) {
	a := resultWithResponse(t, "a", response(t, 1, dns.RcodeSuccess,
		[]dns.RR{mustRR(t, "victim.net. 300 IN A 127.97.1.1")}, nil, nil))
	b := resultWithResponse(t, "b", response(t, 1, dns.RcodeSuccess,
		[]dns.RR{mustRR(t, "victim.net. 300 IN A 127.97.1.2")}, nil, nil))

	items, err := Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, categories(items), CategoryStructuralDifference)
}

func TestDiffSymmetricUnderSwap(t *testing.T) {
	a := resultWithResponse(t, "resolverA", response(t, 1, dns.RcodeServerFailure, nil, nil, nil))
	b := resultWithResponse(t, "resolverB", response(t, 2, dns.RcodeSuccess, nil, nil, nil))

	forward, err := Diff(a, b)
	require.NoError(t, err)
	backward, err := Diff(b, a)
	require.NoError(t, err)

	require.Equal(t, len(forward), len(backward))
	for i := range forward {
		require.Equal(t, forward[i].Path, backward[i].Path)
		require.Equal(t, forward[i].Category, backward[i].Category)
		require.Equal(t, forward[i].ValueA, backward[i].ValueB)
		require.Equal(t, forward[i].ValueB, backward[i].ValueA)
	}
}

func TestFingerprintStableIgnoringDnsId(t *testing.T) {
	a1 := resultWithResponse(t, "a", response(t, 1, dns.RcodeServerFailure, nil, nil, nil))
	b1 := resultWithResponse(t, "b", response(t, 2, dns.RcodeSuccess, nil, nil, nil))
	a2 := resultWithResponse(t, "a", response(t, 99, dns.RcodeServerFailure, nil, nil, nil))
	b2 := resultWithResponse(t, "b", response(t, 100, dns.RcodeSuccess, nil, nil, nil))

	items1, err := Diff(a1, b1)
	require.NoError(t, err)
	items2, err := Diff(a2, b2)
	require.NoError(t, err)

	require.Equal(t, Fingerprint(items1), Fingerprint(items2))
}
