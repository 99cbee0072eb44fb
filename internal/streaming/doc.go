// Package streaming delivers a live fragmented MP4 broadcast over HTTP.
//
// The encoder appends its output to a shared Buffer; any number of
// viewers read from it through independent cursors. Viewers that join
// mid-stream receive the initialization segment followed by data from
// the most recent fragment boundary, so playback starts cleanly without
// replaying the whole session. Slow viewers are dropped rather than
// allowed to stall the broadcast.
package streaming
