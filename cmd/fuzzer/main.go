// Command fuzzer is the differential DNS resolver fuzzing coordinator
// (spec §6). It dispatches to one of four subcommands: the default
// fuzzing loop, "single" (suite reproduction), "spawn" (interactive
// sandbox setup) and "show-stats" (render a past run's statistics).
package main

import (
	"os"

	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
)

// Exit codes, exactly as spec.md §6.
const (
	exitNormal      = 0
	exitConfigError = 2
	exitIOError     = 3
	exitNoResolvers = 4
)

var log = dnsutil.NewLogger("cmd/fuzzer")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runLoop(args)
	}
	switch args[0] {
	case "single":
		return runSingle(args[1:])
	case "spawn":
		return runSpawn(args[1:])
	case "show-stats":
		return runShowStats(args[1:])
	default:
		return runLoop(args)
	}
}
