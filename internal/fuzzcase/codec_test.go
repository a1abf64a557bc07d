package fuzzcase

import (
	"testing"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/stretchr/testify/require"
)

func makeQuery(name string, qtype uint16) *dnsutil.WireMessage {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return dnsutil.FromMsg(m)
}

func sampleSuite(t *testing.T) *Suite {
	t.Helper()
	name := "0000.fuzz."
	qtype := dns.TypeA
	qclass := uint16(dns.ClassINET)
	resp := new(dns.Msg)
	resp.SetQuestion(name, qtype)
	resp.Answer = []dns.RR{}

	c := &Case{
		UUID:        uuid.New(),
		ClientQuery: makeQuery(name, qtype),
		ServerResponses: []ScriptedResponse{
			{
				Match:    QuestionPattern{Name: &name, Qtype: &qtype, Qclass: &qclass},
				Response: dnsutil.FromMsg(resp),
			},
			{
				Match: QuestionPattern{},
				Drop:  true,
			},
		},
		CacheChecks: []*dnsutil.WireMessage{makeQuery("cache."+name, dns.TypeA)},
	}
	return &Suite{Seed: 42, SchemaVersion: SchemaVersion, Cases: []*Case{c}}
}

func TestCodecRoundTrip(t *testing.T) {
	suite := sampleSuite(t)
	encoded, err := Encode(suite)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Cases, 1)

	orig := suite.Cases[0]
	got := decoded.Cases[0]
	require.Equal(t, orig.UUID, got.UUID)
	require.Equal(t, orig.ClientQuery.Bytes(), got.ClientQuery.Bytes())
	require.Len(t, got.ServerResponses, 2)
	require.Equal(t, orig.ServerResponses[0].Response.Bytes(), got.ServerResponses[0].Response.Bytes())
	require.True(t, got.ServerResponses[1].Drop)
	require.Len(t, got.CacheChecks, 1)
	require.Equal(t, orig.CacheChecks[0].Bytes(), got.CacheChecks[0].Bytes())
}

func TestCodecRoundTripMalformedMessage(t *testing.T) {
	// A deliberately truncated DNS message: the header claims one
	// question, whose first label announces 5 bytes but carries only 1.
	// It must survive the codec byte-identical even though Parse() will
	// fail on it (spec §4.1, §9).
	malformed := []byte{0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 5, 'a'}
	c := &Case{
		UUID:        uuid.New(),
		ClientQuery: dnsutil.NewWireMessage(malformed),
	}
	suite := &Suite{SchemaVersion: SchemaVersion, Cases: []*Case{c}}

	encoded, err := Encode(suite)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, malformed, decoded.Cases[0].ClientQuery.Bytes())

	_, parseErr := decoded.Cases[0].ClientQuery.Parse()
	require.Error(t, parseErr)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 0, 0, 1, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	suite := sampleSuite(t)
	encoded, err := Encode(suite)
	require.NoError(t, err)
	// Corrupt the version field to one with no migration registered.
	encoded[4] = 0xff
	encoded[5] = 0xff
	_, err = Decode(encoded)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}
