package authns

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func u16Ptr(v uint16) *uint16 { return &v }

func TestHandlerAnswersStaticZoneSOA(t *testing.T) {
	s := NewStack(nil)
	h := &handler{stack: s, addr: comTestAddr}

	req := new(dns.Msg)
	req.SetQuestion("com.", dns.TypeSOA)

	res := h.answer(req)
	require.False(t, res.drop)
	require.Equal(t, dns.RcodeSuccess, res.msg.Rcode)
	require.Len(t, res.msg.Answer, 1)
	require.Equal(t, dns.TypeSOA, res.msg.Answer[0].Header().Rrtype)
}

func TestHandlerRootDelegatesToNet(t *testing.T) {
	s := NewStack(nil)
	h := &handler{stack: s, addr: rootAddr}

	req := new(dns.Msg)
	req.SetQuestion("victim.net.", dns.TypeA)

	res := h.answer(req)
	require.False(t, res.drop)
	require.Empty(t, res.msg.Answer)
	require.NotEmpty(t, res.msg.Ns)
	require.Equal(t, dns.TypeNS, res.msg.Ns[0].Header().Rrtype)
}

func TestHandlerNetZoneAnswersVictimDirectly(t *testing.T) {
	s := NewStack(nil)
	h := &handler{stack: s, addr: netAddr}

	req := new(dns.Msg)
	req.SetQuestion("victim.net.", dns.TypeA)

	res := h.answer(req)
	require.False(t, res.drop)
	require.Len(t, res.msg.Answer, 1)
	require.Equal(t, victimAddr, res.msg.Answer[0].(*dns.A).A.String())
}

func TestOverlayConsumeOnUseInOrder(t *testing.T) {
	resp1 := makeResponse(t, "0000.fuzz.", dns.TypeA, "1.2.3.4")
	resp2 := makeResponse(t, "0000.fuzz.", dns.TypeA, "5.6.7.8")

	scripts := []fuzzcase.ScriptedResponse{
		{Match: fuzzcase.QuestionPattern{Name: strPtr("0000.fuzz."), Qtype: u16Ptr(dns.TypeA)}, Response: resp1},
		{Match: fuzzcase.QuestionPattern{Name: strPtr("0000.fuzz."), Qtype: u16Ptr(dns.TypeA)}, Response: resp2},
	}
	overlay := NewOverlay(0, scripts)

	s := NewStack(nil)
	s.InstallCase(overlay)
	h := &handler{stack: s, addr: fuzzLeafAddr}

	req := new(dns.Msg)
	req.SetQuestion("0000.fuzz.", dns.TypeA)

	res1 := h.answer(req)
	require.False(t, res1.drop)
	require.Len(t, res1.msg.Answer, 1)
	require.Equal(t, "1.2.3.4", res1.msg.Answer[0].(*dns.A).A.String())

	res2 := h.answer(req)
	require.False(t, res2.drop)
	require.Len(t, res2.msg.Answer, 1)
	require.Equal(t, "5.6.7.8", res2.msg.Answer[0].(*dns.A).A.String())

	res3 := h.answer(req)
	require.False(t, res3.drop)
	require.Equal(t, dns.RcodeNameError, res3.msg.Rcode)
}

func TestOverlayDropSuppressesReply(t *testing.T) {
	scripts := []fuzzcase.ScriptedResponse{
		{Match: fuzzcase.QuestionPattern{Name: strPtr("0001.fuzz.")}, Drop: true},
	}
	overlay := NewOverlay(1, scripts)
	s := NewStack(nil)
	s.InstallCase(overlay)
	h := &handler{stack: s, addr: fuzzLeafAddr}

	req := new(dns.Msg)
	req.SetQuestion("0001.fuzz.", dns.TypeA)

	res := h.answer(req)
	require.True(t, res.drop)
}

func TestOverlayStickyResponseIsReused(t *testing.T) {
	resp := makeResponse(t, "0002.fuzz.", dns.TypeA, "9.9.9.9")
	scripts := []fuzzcase.ScriptedResponse{
		{Match: fuzzcase.QuestionPattern{Name: strPtr("0002.fuzz.")}, Response: resp, Sticky: true},
	}
	overlay := NewOverlay(2, scripts)
	s := NewStack(nil)
	s.InstallCase(overlay)
	h := &handler{stack: s, addr: fuzzLeafAddr}

	req := new(dns.Msg)
	req.SetQuestion("0002.fuzz.", dns.TypeA)

	for i := 0; i < 3; i++ {
		res := h.answer(req)
		require.False(t, res.drop)
		require.Len(t, res.msg.Answer, 1)
	}
}

func TestOverlayEmptyNonTerminalIsNodataNotNxdomain(t *testing.T) {
	resp := makeResponse(t, "leaf.0003.fuzz.", dns.TypeA, "10.0.0.1")
	scripts := []fuzzcase.ScriptedResponse{
		{Match: fuzzcase.QuestionPattern{Name: strPtr("leaf.0003.fuzz.")}, Response: resp},
	}
	overlay := NewOverlay(3, scripts)
	s := NewStack(nil)
	s.InstallCase(overlay)
	h := &handler{stack: s, addr: fuzzLeafAddr}

	req := new(dns.Msg)
	req.SetQuestion("0003.fuzz.", dns.TypeA)

	res := h.answer(req)
	require.False(t, res.drop)
	require.Equal(t, dns.RcodeSuccess, res.msg.Rcode, "0003.fuzz. has a descendant so this must be NODATA, not NXDOMAIN")
	require.Empty(t, res.msg.Answer)
	require.NotEmpty(t, res.msg.Ns)
	require.Equal(t, dns.TypeSOA, res.msg.Ns[0].Header().Rrtype)
}

func TestOverlayTrueNonexistentNameIsNxdomain(t *testing.T) {
	resp := makeResponse(t, "other.0004.fuzz.", dns.TypeA, "10.0.0.2")
	scripts := []fuzzcase.ScriptedResponse{
		{Match: fuzzcase.QuestionPattern{Name: strPtr("other.0004.fuzz.")}, Response: resp},
	}
	overlay := NewOverlay(4, scripts)
	s := NewStack(nil)
	s.InstallCase(overlay)
	h := &handler{stack: s, addr: fuzzLeafAddr}

	req := new(dns.Msg)
	req.SetQuestion("nope.0004.fuzz.", dns.TypeA)

	res := h.answer(req)
	require.False(t, res.drop)
	require.Equal(t, dns.RcodeNameError, res.msg.Rcode)
}

func TestDelegationInstalledAtFuzzAddr(t *testing.T) {
	overlay := NewOverlay(7, nil)
	s := NewStack(nil)
	s.InstallCase(overlay)
	h := &handler{stack: s, addr: fuzzAddr}

	req := new(dns.Msg)
	req.SetQuestion("0007.fuzz.", dns.TypeA)

	res := h.answer(req)
	require.False(t, res.drop)
	require.NotEmpty(t, res.msg.Ns)
	require.Equal(t, dns.TypeNS, res.msg.Ns[0].Header().Rrtype)
	require.NotEmpty(t, res.msg.Extra)
	require.Equal(t, fuzzLeafAddr, res.msg.Extra[0].(*dns.A).A.String())
}

func TestExchangeLogRecordsAppend(t *testing.T) {
	elog := dnsutil.NewExchangeLog(time.Now())
	req := new(dns.Msg)
	req.SetQuestion("example.fuzz.", dns.TypeA)
	elog.Append(nil, nil, dnsutil.FromMsg(req), true)
	require.Len(t, elog.Entries(), 1)
}

func makeResponse(t *testing.T, name string, qtype uint16, ip string) *dnsutil.WireMessage {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.Response = true
	rr, err := dns.NewRR(name + " 300 IN A " + ip)
	require.NoError(t, err)
	m.Answer = append(m.Answer, rr)
	return dnsutil.FromMsg(m)
}
