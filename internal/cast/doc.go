// Package cast discovers Chromecast devices on the local network and
// manages playback sessions against them.
package cast
