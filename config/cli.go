package config

import (
	"flag"
	"time"
)

// Cli holds the process-level flags for the gateway binary, parsed with
// github.com/peterbourgon/ff/v3 the same way the upstream CLI parses its flags.
type Cli struct {
	HTTPAddress    string
	ConfigPath     string
	BackendBaseURL string
	KVStoreURL     string
	PromPort       int
	RequestTimeout time.Duration
	DebugEnabled   bool
	VerboseDebug   bool
}

// AddrFlag registers a listen-address flag, mirroring the helper the upstream CLI
// uses for every bind address it exposes.
func AddrFlag(fs *flag.FlagSet, p *string, name, value, usage string) {
	fs.StringVar(p, name, value, usage)
}
