package scheduler

import "github.com/pkg/errors"

// ErrNoResolvers is returned by RunRound when every resolver has been
// disabled (spec §6: "all resolvers failed to start" is exit code 4 at
// the CLI layer; this is the scheduler-level signal that drives it).
var ErrNoResolvers = errors.New("scheduler: no enabled resolvers")
