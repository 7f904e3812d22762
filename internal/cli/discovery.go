package cli

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

const (
	// BinaryName is the file name of the agent binary.
	BinaryName = "agentd"

	// MinimumVersion is the oldest agent version known to speak the protocol.
	MinimumVersion = "0.3.0"

	// VersionCheckTimeout bounds the agent version command.
	VersionCheckTimeout = 2 * time.Second

	// EnvSkipVersionCheck disables the version check when set to any value.
	EnvSkipVersionCheck = "AGENTRPC_SKIP_VERSION_CHECK"
)

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

// Config holds configuration for agent discovery.
type Config struct {
	// AgentPath is an explicit agent path that skips the search.
	AgentPath string

	// SkipVersionCheck skips version validation during discovery.
	SkipVersionCheck bool

	// Logger is an optional logger for discovery operations.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Discoverer locates the agent binary.
type Discoverer interface {
	// Discover returns the path of the agent binary or an
	// *errors.AgentNotFoundError listing the places searched.
	Discover(ctx context.Context) (string, error)
}

type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new agent discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = config.NopLogger()
	}

	return &discoverer{cfg: cfg, log: log}
}

// Discover locates the agent binary and checks its version.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	path, err := d.find()
	if err != nil {
		d.log.Error("Agent binary not found", "error", err)

		return "", err
	}

	d.log.Debug("Found agent binary", "agent_path", path)
	d.checkVersion(ctx, path)

	return path, nil
}

func (d *discoverer) find() (string, error) {
	if d.cfg.AgentPath != "" {
		if _, err := os.Stat(d.cfg.AgentPath); err == nil {
			return d.cfg.AgentPath, nil
		}

		return "", &errors.AgentNotFoundError{SearchedPaths: []string{d.cfg.AgentPath}}
	}

	searched := []string{"$PATH"}

	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	candidates := []string{
		filepath.Join("/usr/local/bin", BinaryName),
		filepath.Join("/usr/bin", BinaryName),
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", BinaryName))
	}

	for _, path := range candidates {
		searched = append(searched, path)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", &errors.AgentNotFoundError{SearchedPaths: searched}
}

// checkVersion logs a warning when the agent is older than MinimumVersion.
// Failures to run or parse the version command are ignored.
func (d *discoverer) checkVersion(ctx context.Context, path string) {
	if d.cfg.SkipVersionCheck || os.Getenv(EnvSkipVersionCheck) != "" {
		d.log.Debug("Skipping agent version check")

		return
	}

	ctx, cancel := context.WithTimeout(ctx, VersionCheckTimeout)
	defer cancel()

	//nolint:gosec // G204: the agent path comes from discovery
	output, err := exec.CommandContext(ctx, path, "version").Output()
	if err != nil {
		d.log.Debug("Agent version check failed", "error", err)

		return
	}

	match := versionPattern.FindStringSubmatch(strings.TrimSpace(string(output)))
	if match == nil {
		d.log.Debug("Could not parse agent version", "output", string(output))

		return
	}

	if compareVersions(match[1], MinimumVersion) < 0 {
		d.log.Warn("Agent version is older than supported",
			"version", match[1],
			"minimum_required", MinimumVersion,
		)

		return
	}

	d.log.Debug("Agent version check passed", "version", match[1])
}

// compareVersions compares two semantic versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for i := range 3 {
		var aNum, bNum int

		if i < len(aParts) {
			aNum, _ = strconv.Atoi(aParts[i])
		}

		if i < len(bParts) {
			bNum, _ = strconv.Atoi(bParts[i])
		}

		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		}
	}

	return 0
}
