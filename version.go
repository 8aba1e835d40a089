package triage

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/aretw0/triage.Version=...".
var Version = "0.3.0"
