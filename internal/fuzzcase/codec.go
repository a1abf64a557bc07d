package fuzzcase

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/pkg/errors"
)

// SchemaVersion is the version this build writes and the newest version
// it can read natively; Decode consults migrations for anything older.
const SchemaVersion uint16 = 1

var magic = [4]byte{'d', 'f', 'u', 'z'}

// ErrSchemaMismatch is returned when a persisted suite carries a version
// this build neither writes nor can forward-migrate from (spec §4.1, §7).
var ErrSchemaMismatch = errors.New("fuzzcase: schema mismatch")

// migrations upgrades a suite encoded at an older schema version to the
// current in-memory representation. There are no prior versions yet, so
// the table is empty; it exists so a future bump has somewhere to land
// without touching Decode's control flow.
var migrations = map[uint16]func([]byte) (*Suite, error){}

// Encode produces the schema-tagged binary form of a suite (spec §6):
// magic(4) | version(u16) | case_count(u32), followed by each case's
// client query, scripted responses and cache checks as length-prefixed
// wire bytes. Fixed-width big-endian fields are used throughout, the same
// convention the pack's dnsmsg codec (mateusz834-dnsmsg/binary.go) and
// miekg/dns's own wire format both follow.
func Encode(s *Suite) ([]byte, error) {
	buf := make([]byte, 0, 256*len(s.Cases))
	buf = append(buf, magic[:]...)
	buf = appendUint16(buf, SchemaVersion)
	buf = appendUint32(buf, uint32(len(s.Cases)))
	for _, c := range s.Cases {
		var err error
		buf, err = encodeCase(buf, c)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding case %s", c.UUID)
		}
	}
	return buf, nil
}

func encodeCase(buf []byte, c *Case) ([]byte, error) {
	uuidBytes, err := c.UUID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf = append(buf, uuidBytes...)
	buf = appendBytes(buf, c.ClientQuery.Bytes())

	buf = appendUint32(buf, uint32(len(c.ServerResponses)))
	for _, sr := range c.ServerResponses {
		buf = appendBytes(buf, encodePattern(sr.Match))
		flags := byte(0)
		if sr.Drop {
			flags |= 1
		}
		if sr.Sticky {
			flags |= 2
		}
		buf = append(buf, flags)
		var respBytes []byte
		if sr.Response != nil {
			respBytes = sr.Response.Bytes()
		}
		buf = appendBytes(buf, respBytes)
	}

	buf = appendUint32(buf, uint32(len(c.CacheChecks)))
	for _, cc := range c.CacheChecks {
		buf = appendBytes(buf, cc.Bytes())
	}
	return buf, nil
}

func encodePattern(p QuestionPattern) []byte {
	var out []byte
	present := byte(0)
	if p.Name != nil {
		present |= 1
	}
	if p.Qtype != nil {
		present |= 2
	}
	if p.Qclass != nil {
		present |= 4
	}
	out = append(out, present)
	if p.Name != nil {
		out = appendBytes(out, []byte(*p.Name))
	}
	if p.Qtype != nil {
		out = appendUint16(out, *p.Qtype)
	}
	if p.Qclass != nil {
		out = appendUint16(out, *p.Qclass)
	}
	return out
}

func decodePattern(b []byte) (QuestionPattern, error) {
	if len(b) < 1 {
		return QuestionPattern{}, errors.New("pattern: truncated")
	}
	present := b[0]
	b = b[1:]
	var p QuestionPattern
	if present&1 != 0 {
		if len(b) < 4 {
			return p, errors.New("pattern: truncated name length")
		}
		n := int(binary.BigEndian.Uint32(b))
		b = b[4:]
		if len(b) < n {
			return p, errors.New("pattern: truncated name")
		}
		name := string(b[:n])
		b = b[n:]
		p.Name = &name
	}
	if present&2 != 0 {
		if len(b) < 2 {
			return p, errors.New("pattern: truncated qtype")
		}
		v := binary.BigEndian.Uint16(b)
		b = b[2:]
		p.Qtype = &v
	}
	if present&4 != 0 {
		if len(b) < 2 {
			return p, errors.New("pattern: truncated qclass")
		}
		v := binary.BigEndian.Uint16(b)
		p.Qclass = &v
	}
	return p, nil
}

// Decode parses the binary form produced by Encode, following forward
// migrations for older schema versions and failing with
// ErrSchemaMismatch otherwise.
func Decode(buf []byte) (*Suite, error) {
	if len(buf) < 10 || string(buf[:4]) != string(magic[:]) {
		return nil, errors.Wrap(ErrSchemaMismatch, "bad magic")
	}
	version := binary.BigEndian.Uint16(buf[4:6])
	if version != SchemaVersion {
		migrate, ok := migrations[version]
		if !ok {
			return nil, errors.Wrapf(ErrSchemaMismatch, "unsupported version %d", version)
		}
		return migrate(buf)
	}

	r := &reader{buf: buf[6:]}
	caseCount, err := r.uint32()
	if err != nil {
		return nil, errors.Wrap(err, "reading case_count")
	}

	suite := &Suite{SchemaVersion: version}
	for i := uint32(0); i < caseCount; i++ {
		c, err := decodeCase(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding case %d", i)
		}
		suite.Cases = append(suite.Cases, c)
	}
	return suite, nil
}

func decodeCase(r *reader) (*Case, error) {
	uuidBytes, err := r.take(16)
	if err != nil {
		return nil, errors.Wrap(err, "reading uuid")
	}
	id, err := uuid.FromBytes(uuidBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing uuid")
	}

	queryBytes, err := r.lenPrefixed()
	if err != nil {
		return nil, errors.Wrap(err, "reading client_query")
	}

	c := &Case{UUID: id, ClientQuery: dnsutil.NewWireMessage(queryBytes)}

	nScripted, err := r.uint32()
	if err != nil {
		return nil, errors.Wrap(err, "reading n_scripted")
	}
	for i := uint32(0); i < nScripted; i++ {
		patternBytes, err := r.lenPrefixed()
		if err != nil {
			return nil, errors.Wrapf(err, "reading scripted[%d] pattern", i)
		}
		pattern, err := decodePattern(patternBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing scripted[%d] pattern", i)
		}
		flags, err := r.byte()
		if err != nil {
			return nil, errors.Wrapf(err, "reading scripted[%d] flags", i)
		}
		respBytes, err := r.lenPrefixed()
		if err != nil {
			return nil, errors.Wrapf(err, "reading scripted[%d] response", i)
		}
		sr := ScriptedResponse{
			Match:  pattern,
			Drop:   flags&1 != 0,
			Sticky: flags&2 != 0,
		}
		if len(respBytes) > 0 {
			sr.Response = dnsutil.NewWireMessage(respBytes)
		}
		c.ServerResponses = append(c.ServerResponses, sr)
	}

	nCacheChecks, err := r.uint32()
	if err != nil {
		return nil, errors.Wrap(err, "reading n_cache_checks")
	}
	for i := uint32(0); i < nCacheChecks; i++ {
		b, err := r.lenPrefixed()
		if err != nil {
			return nil, errors.Wrapf(err, "reading cache_check[%d]", i)
		}
		c.CacheChecks = append(c.CacheChecks, dnsutil.NewWireMessage(b))
	}

	return c, nil
}

// reader walks a byte slice, consuming fixed and length-prefixed fields.
type reader struct {
	buf []byte
}

func (r *reader) byte() (byte, error) {
	if len(r.buf) < 1 {
		return 0, fmt.Errorf("unexpected end of buffer")
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.buf) < n {
		return nil, fmt.Errorf("unexpected end of buffer, need %d have %d", n, len(r.buf))
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) lenPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendBytes(b []byte, data []byte) []byte {
	b = appendUint32(b, uint32(len(data)))
	return append(b, data...)
}
