package main

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// defaultAddr is the HTTP listen address used when neither -addr nor the
// PORT environment variable is given.
const defaultAddr = ":3001"

// defaultTotalsDSN is empty: an unconfigured totals sink is a documented,
// supported mode (increments become no-ops, /metrics returns 503).
const defaultTotalsDSN = ""
