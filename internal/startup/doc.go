// Package startup handles configuration loading, validation, and the
// startup/shutdown logging sequence.
//
// Configuration comes from command-line flags, each with a TMUX_CAST_*
// environment variable fallback so the tool works unattended in
// scripts. Validation normalizes values the encoder is picky about,
// like forcing even output dimensions.
package startup
