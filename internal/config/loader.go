package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/peertalk/peertalk/pkg/peertalk"
)

// checkConfigFilePermissions warns callers off a world/group-readable
// config file. PeerTalk configs don't carry secrets today, but the
// check stays cheap insurance as fields are added.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*FileConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if fc.Version == 0 {
		fc.Version = 1
	}
	if fc.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d", ErrConfigVersionTooNew, fc.Version, CurrentConfigVersion)
	}
	return &fc, nil
}

// ToPeerTalkConfig translates the file shape into peertalk.Config,
// parsing duration strings and the transport name list. Zero-valued
// fields are left at zero so peertalk.Config.withDefaults applies the
// library's own defaults.
func (fc *FileConfig) ToPeerTalkConfig() (peertalk.Config, error) {
	cfg := peertalk.Config{
		LocalName:           fc.Identity.LocalName,
		DiscoveryPort:       fc.Network.DiscoveryPort,
		TCPPort:             fc.Network.TCPPort,
		UDPPort:             fc.Network.UDPPort,
		MaxPeers:            fc.Network.MaxPeers,
		AutoAccept:          fc.Network.AutoAccept,
		AutoCleanup:         fc.Network.AutoCleanup,
		QueueCapacity:       fc.Queue.Capacity,
		MaxMessageSize:      fc.Queue.MaxMessageSize,
		PreferredChunk:      fc.Queue.PreferredChunk,
		EnableFragmentation: fc.Queue.EnableFragmentation,
		LogFilename:         fc.Logging.Filename,
	}

	for _, name := range fc.Network.Transports {
		switch name {
		case "tcp":
			cfg.Transports |= peertalk.TransportTCP
		case "udp":
			cfg.Transports |= peertalk.TransportUDP
		case "adsp":
			cfg.Transports |= peertalk.TransportADSP
		default:
			return cfg, fmt.Errorf("%w: unknown transport %q", peertalk.ErrBadParameter, name)
		}
	}

	if fc.Discovery.Interval != "" {
		d, err := time.ParseDuration(fc.Discovery.Interval)
		if err != nil {
			return cfg, fmt.Errorf("invalid discovery.interval: %w", err)
		}
		cfg.DiscoveryInterval = d
	}
	if fc.Discovery.PeerTimeout != "" {
		d, err := time.ParseDuration(fc.Discovery.PeerTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid discovery.peer_timeout: %w", err)
		}
		cfg.PeerTimeout = d
	}

	cfg.LogLevel = parseLogLevel(fc.Logging.Level)
	return cfg, nil
}

func parseLogLevel(s string) peertalk.LogLevel {
	switch s {
	case "debug":
		return peertalk.LogDebug
	case "warn":
		return peertalk.LogWarn
	case "protocol":
		return peertalk.LogProtocol
	case "error", "err":
		return peertalk.LogErr
	default:
		return peertalk.LogInfo
	}
}
