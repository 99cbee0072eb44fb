package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/louisbarrett/tmux-cast/internal/history"
	"github.com/louisbarrett/tmux-cast/internal/logging"
	"github.com/louisbarrett/tmux-cast/internal/render"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	Target   string
	Device   string
	Width    int
	Height   int
	FPS      int
	Bitrate  string
	FontSize int
	Padding  int
	BGColor  string
	FGColor  string
	Port     int

	HistoryPath     string
	DiscoverTimeout time.Duration

	NoInteractive bool
	URLOnly       bool

	// Modes that run and exit instead of streaming
	ListSessions bool
	ListDevices  bool
	ShowHistory  bool
	ShowVersion  bool
}

var bitratePattern = regexp.MustCompile(`^[0-9]+[kKmM]?$`)

// LoadConfig parses command-line flags with TMUX_CAST_* environment
// variable fallback, validates the result, and returns the
// configuration. args is the command line without the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}

	flags := pflag.NewFlagSet("tmux-cast", pflag.ContinueOnError)
	flags.SortFlags = false

	flags.StringVarP(&cfg.Target, "target", "t", envString("TMUX_CAST_TARGET", ""),
		"tmux target (session, session:window, or session:window.pane)")
	flags.StringVarP(&cfg.Device, "device", "d", envString("TMUX_CAST_DEVICE", ""),
		"Chromecast device name (empty = first found)")
	flags.IntVar(&cfg.Width, "width", envInt("TMUX_CAST_WIDTH", 1920), "output video width")
	flags.IntVar(&cfg.Height, "height", envInt("TMUX_CAST_HEIGHT", 1080), "output video height")
	flags.IntVar(&cfg.FPS, "fps", envInt("TMUX_CAST_FPS", 10), "frames per second")
	flags.StringVar(&cfg.Bitrate, "bitrate", envString("TMUX_CAST_BITRATE", "2M"), "video bitrate")
	flags.IntVar(&cfg.FontSize, "font-size", envInt("TMUX_CAST_FONT_SIZE", 20), "glyph height in pixels")
	flags.IntVar(&cfg.Padding, "padding", envInt("TMUX_CAST_PADDING", 40), "padding around the grid in pixels")
	flags.StringVar(&cfg.BGColor, "bg", envString("TMUX_CAST_BG", "#1e1e1e"), "background color")
	flags.StringVar(&cfg.FGColor, "fg", envString("TMUX_CAST_FG", "#d4d4d4"), "foreground color")
	flags.IntVarP(&cfg.Port, "port", "p", envInt("TMUX_CAST_PORT", 0), "HTTP port (0 = auto-assign)")
	flags.StringVar(&cfg.HistoryPath, "history-db",
		envString("TMUX_CAST_HISTORY_DB", history.DefaultPath()), "session history database path")
	flags.DurationVar(&cfg.DiscoverTimeout, "discover-timeout",
		envDuration("TMUX_CAST_DISCOVER_TIMEOUT", 5*time.Second), "device discovery timeout")

	flags.BoolVar(&cfg.NoInteractive, "no-interactive", false, "never prompt for a target")
	flags.BoolVar(&cfg.URLOnly, "url-only", false, "serve the stream and print its URL without casting")
	flags.BoolVar(&cfg.ListSessions, "list-sessions", false, "list tmux sessions and exit")
	flags.BoolVar(&cfg.ListDevices, "list-devices", false, "list cast devices and exit")
	flags.BoolVar(&cfg.ShowHistory, "history", false, "show recent casting sessions and exit")
	flags.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Width < 2 || c.Height < 2 {
		return fmt.Errorf("invalid output resolution %dx%d", c.Width, c.Height)
	}
	// The H.264 encoder requires even dimensions.
	c.Width &^= 1
	c.Height &^= 1

	if c.FPS < 1 || c.FPS > 60 {
		return fmt.Errorf("fps must be between 1 and 60, got %d", c.FPS)
	}
	if c.FontSize < 4 {
		return fmt.Errorf("font size must be at least 4, got %d", c.FontSize)
	}
	if c.Padding < 0 {
		return fmt.Errorf("padding must not be negative, got %d", c.Padding)
	}
	if !bitratePattern.MatchString(c.Bitrate) {
		return fmt.Errorf("invalid bitrate %q (expected forms like 2M or 800k)", c.Bitrate)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := render.ParseHexColor(c.BGColor); err != nil {
		return fmt.Errorf("invalid background color: %w", err)
	}
	if _, err := render.ParseHexColor(c.FGColor); err != nil {
		return fmt.Errorf("invalid foreground color: %w", err)
	}
	return nil
}

// Style builds the renderer style from the configured colors.
func (c *Config) Style() (render.Style, error) {
	bg, err := render.ParseHexColor(c.BGColor)
	if err != nil {
		return render.Style{}, err
	}
	fg, err := render.ParseHexColor(c.FGColor)
	if err != nil {
		return render.Style{}, err
	}
	return render.Style{
		FontSize: c.FontSize,
		Padding:  c.Padding,
		BG:       bg,
		FG:       fg,
	}, nil
}

// LogStartup prints the banner and the effective configuration.
func LogStartup(c *Config) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Target:       %s", orUnset(c.Target))
	logging.Info("  Device:       %s", orUnset(c.Device))
	logging.Info("  Resolution:   %dx%d @ %d fps", c.Width, c.Height, c.FPS)
	logging.Info("  Bitrate:      %s", c.Bitrate)
	logging.Info("  Font size:    %d, padding %d", c.FontSize, c.Padding)
	logging.Info("  Colors:       bg %s, fg %s", c.BGColor, c.FGColor)
	if c.Port == 0 {
		logging.Info("  Port:         auto")
	} else {
		logging.Info("  Port:         %d", c.Port)
	}
	logging.Info("  History:      %s", c.HistoryPath)
	logging.Info("  LOG_LEVEL:    %s", logging.GetLevel())
	logging.Info("")
}

// CheckPrerequisites verifies the external commands the pipeline needs.
func CheckPrerequisites(ctx context.Context) error {
	if err := checkCommand(ctx, "tmux", "-V"); err != nil {
		return fmt.Errorf("tmux not usable: %w", err)
	}
	if err := checkCommand(ctx, "ffmpeg", "-version"); err != nil {
		return fmt.Errorf("ffmpeg not usable: %w", err)
	}
	return nil
}

func checkCommand(ctx context.Context, name string, versionArg string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  %s path: %s", name, path)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(runCtx, name, versionArg).Output()
	if err != nil {
		return fmt.Errorf("failed to run %s %s: %w", name, versionArg, err)
	}
	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", name, strings.TrimSpace(line))
	}
	return nil
}

// LogStreamStarted announces the live stream endpoints.
func LogStreamStarted(url string, port int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("STREAM STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Stream:    %s", url)
	logging.Info("  Stats:     http://localhost:%d/stats", port)
	logging.Info("  Metrics:   http://localhost:%d/metrics", port)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
  _                                           _
 | |_ _ __ ___  _   ___  __      ___ __ _ ___| |_
 | __| '_ ' _ \| | | \ \/ /____ / __/ _' / __| __|
 | |_| | | | | | |_| |>  <_____| (_| (_| \__ \ |_
  \__|_| |_| |_|\__,_/_/\_\     \___\__,_|___/\__|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func envString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
