package main

import (
	"fmt"
	"strings"

	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
)

// baseControlPort is the first port assigned to a resolver's coverage
// shim control socket; each --resolvers occurrence gets the next one, so
// running several resolvers on one host never collides (spec §6's
// FUZZEE_LISTEN_ADDR environment variable).
const baseControlPort = 9500

// resolverListFlag implements flag.Value, accumulating one
// harness.ResolverSpec per "--resolvers id=/path/to/binary[,arg,...]"
// occurrence.
type resolverListFlag struct {
	specs []harness.ResolverSpec
}

func (f *resolverListFlag) String() string {
	var names []string
	for _, s := range f.specs {
		names = append(names, s.ID)
	}
	return strings.Join(names, ",")
}

func (f *resolverListFlag) Set(value string) error {
	id, rest, ok := strings.Cut(value, "=")
	if !ok || id == "" || rest == "" {
		return fmt.Errorf("invalid --resolvers value %q, want id=path[,arg,...]", value)
	}
	parts := strings.Split(rest, ",")
	path, args := parts[0], parts[1:]

	spec := harness.ResolverSpec{
		ID:          id,
		Path:        path,
		Args:        args,
		ControlAddr: fmt.Sprintf("127.0.0.1:%d", baseControlPort+len(f.specs)),
	}
	f.specs = append(f.specs, spec)
	return nil
}
