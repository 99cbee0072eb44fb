package cast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/dns"

	"github.com/louisbarrett/tmux-cast/internal/logging"
	"github.com/louisbarrett/tmux-cast/internal/metrics"
)

const (
	// streamContentType is what the playback device is told to expect.
	streamContentType = "video/mp4"

	// keepaliveInterval is how often the player state is polled. The
	// device drops idle connections, and polling doubles as a heartbeat.
	keepaliveInterval = 5 * time.Second
)

// ErrNoDevices is returned when discovery finishes without finding any
// cast device on the network.
var ErrNoDevices = errors.New("no cast devices found")

// Device describes a discovered cast target.
type Device struct {
	Name string
	UUID string
	Addr string
	Port int
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s:%d)", d.Name, d.Addr, d.Port)
}

// Discover scans the local network via mDNS for cast devices, waiting
// up to timeout for responses. Results are deduplicated by UUID and
// sorted by name.
func Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries, err := dns.DiscoverCastDNSEntries(ctx, nil)
	if err != nil {
		metrics.CastCommandsTotal.WithLabelValues("discover", "error").Inc()
		return nil, fmt.Errorf("mdns discovery: %w", err)
	}

	seen := make(map[string]bool)
	var devices []Device
	for entry := range entries {
		if seen[entry.UUID] {
			continue
		}
		seen[entry.UUID] = true
		devices = append(devices, Device{
			Name: entry.DeviceName,
			UUID: entry.UUID,
			Addr: entry.GetAddr(),
			Port: entry.GetPort(),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})

	metrics.CastCommandsTotal.WithLabelValues("discover", "success").Inc()
	return devices, nil
}

// FindDevice discovers devices and returns the one matching name. An
// empty name selects the first device found. Matching is
// case-insensitive on the friendly name, exact first, then prefix.
func FindDevice(ctx context.Context, name string, timeout time.Duration) (Device, error) {
	devices, err := Discover(ctx, timeout)
	if err != nil {
		return Device{}, err
	}
	return MatchDevice(devices, name)
}

// MatchDevice selects the device matching name from a discovered set.
func MatchDevice(devices []Device, name string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevices
	}
	if name == "" {
		return devices[0], nil
	}

	want := strings.ToLower(name)
	for _, d := range devices {
		if strings.ToLower(d.Name) == want {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.HasPrefix(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}

	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return Device{}, fmt.Errorf("no cast device matching %q (found: %s)", name, strings.Join(names, ", "))
}

// Session is a playback session on a single cast device. It keeps the
// stream playing by re-issuing the load command if the device goes
// idle, which happens after transient network drops.
type Session struct {
	device Device
	app    *application.Application
	url    string

	mu       sync.Mutex
	playing  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSession creates a session for the given device. Call Connect
// before Play.
func NewSession(device Device) *Session {
	return &Session{
		device: device,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Device returns the session's target device.
func (s *Session) Device() Device {
	return s.device
}

// Connect establishes the control connection to the device.
func (s *Session) Connect() error {
	app := application.NewApplication(
		application.WithDebug(logging.IsDebugEnabled()),
		application.WithCacheDisabled(true),
	)
	if err := app.Start(s.device.Addr, s.device.Port); err != nil {
		metrics.CastCommandsTotal.WithLabelValues("connect", "error").Inc()
		return fmt.Errorf("connect to %s: %w", s.device, err)
	}
	s.app = app
	metrics.CastCommandsTotal.WithLabelValues("connect", "success").Inc()
	logging.Info("Connected to cast device %s", s.device)
	return nil
}

// Play tells the device to start playing the stream URL and begins the
// keepalive loop.
func (s *Session) Play(url string) error {
	s.url = url
	if err := s.load(); err != nil {
		metrics.CastCommandsTotal.WithLabelValues("load", "error").Inc()
		return fmt.Errorf("load %s on %s: %w", url, s.device.Name, err)
	}
	metrics.CastCommandsTotal.WithLabelValues("load", "success").Inc()
	logging.Info("Casting %s to %s", url, s.device.Name)

	s.playing = true
	go s.keepalive()
	return nil
}

func (s *Session) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app.Load(s.url, 0, streamContentType, false, true, false)
}

// keepalive polls the player and reloads the stream if the device has
// gone idle.
func (s *Session) keepalive() {
	defer close(s.doneCh)
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		err := s.app.Update()
		_, media, _ := s.app.Status()
		s.mu.Unlock()

		if err != nil {
			metrics.CastCommandsTotal.WithLabelValues("keepalive", "error").Inc()
			logging.Warn("Cast status update failed: %v", err)
			continue
		}
		metrics.CastCommandsTotal.WithLabelValues("keepalive", "success").Inc()

		if media == nil || media.PlayerState == "IDLE" {
			logging.Warn("Cast device went idle, reloading stream")
			if err := s.load(); err != nil {
				metrics.CastCommandsTotal.WithLabelValues("load", "error").Inc()
				logging.Warn("Reload failed: %v", err)
			} else {
				metrics.CastCommandsTotal.WithLabelValues("load", "success").Inc()
			}
		}
	}
}

// Stop halts playback and tears down the control connection. Safe to
// call more than once and on a session that never connected.
func (s *Session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.playing {
			<-s.doneCh
		}
		if s.app == nil {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if stopErr := s.app.Close(true); stopErr != nil {
			metrics.CastCommandsTotal.WithLabelValues("stop", "error").Inc()
			err = fmt.Errorf("close cast session: %w", stopErr)
			return
		}
		metrics.CastCommandsTotal.WithLabelValues("stop", "success").Inc()
		logging.Info("Cast session on %s stopped", s.device.Name)
	})
	return err
}
