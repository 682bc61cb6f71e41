// Package config provides configuration management for relayctl. It handles
// loading and parsing the YAML configuration file and provides structured
// access to relay endpoints, credential sources, admission control, and
// logging settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Username identifies the caller on the wire (x-user-username header).
	Username string `yaml:"username" json:"username"`

	// Servers configures relay endpoint resolution.
	Servers ServersConfig `yaml:"servers" json:"servers"`

	// PoolFile is the path to the shared credential pool maintained by the
	// external refresh process.
	PoolFile string `yaml:"pool-file" json:"pool-file"`

	// StorePath is the SQLite database holding the personal credential and
	// local failure history.
	StorePath string `yaml:"store-path" json:"store-path"`

	// Admission configures the external admission coordinator.
	Admission AdmissionConfig `yaml:"admission,omitempty" json:"admission,omitempty"`

	// FailureSinkURL, when set, receives one record per exhausted dispatch.
	FailureSinkURL string `yaml:"failure-sink-url,omitempty" json:"failure-sink-url,omitempty"`

	// RequestTimeoutSeconds bounds each network attempt. <= 0 selects the
	// dispatcher default (120).
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds,omitempty" json:"request-timeout-seconds,omitempty"`

	// Serve configures the local HTTP facade (--serve mode).
	Serve ServeConfig `yaml:"serve,omitempty" json:"serve,omitempty"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug,omitempty" json:"debug,omitempty"`

	// LogFile, when set, mirrors logs to a rotated file.
	LogFile string `yaml:"log-file,omitempty" json:"log-file,omitempty"`
}

// ServersConfig holds relay endpoint resolution settings.
type ServersConfig struct {
	// Image is the public endpoint for the image service.
	Image string `yaml:"image" json:"image"`

	// Video is the public endpoint for the video service.
	Video string `yaml:"video" json:"video"`

	// Active is a relay the user selected in a previous session; it is used
	// when no per-service endpoint is configured.
	Active string `yaml:"active,omitempty" json:"active,omitempty"`

	// Fallbacks lists additional relays eligible as backups in pool mode.
	Fallbacks []string `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`

	// Local routes all calls to a relay on this machine.
	Local bool `yaml:"local,omitempty" json:"local,omitempty"`

	// LocalURL overrides the default local relay address.
	LocalURL string `yaml:"local-url,omitempty" json:"local-url,omitempty"`
}

// AdmissionConfig holds admission coordinator settings.
type AdmissionConfig struct {
	// Endpoint is the coordinator's slot endpoint. Empty disables admission
	// control entirely.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// CooldownSeconds is the fixed per-server cooldown window requested from
	// the coordinator. <= 0 selects the default (30).
	CooldownSeconds int `yaml:"cooldown-seconds,omitempty" json:"cooldown-seconds,omitempty"`
}

// ServeConfig holds local HTTP facade settings.
type ServeConfig struct {
	// Port is the listen port for --serve. <= 0 selects 8400.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// DefaultServePort is used when no serve port is configured.
const DefaultServePort = 8400

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Watch reloads the configuration whenever the file changes and hands the
// fresh copy to onChange. It watches the parent directory so atomic
// write-and-rename updates are observed. The returned closer stops the watch.
func Watch(path string, onChange func(*Config)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, errLoad := LoadConfig(path)
				if errLoad != nil {
					log.WithError(errLoad).Warnf("config: reload %s failed", path)
					continue
				}
				log.Infof("config: reloaded %s", path)
				onChange(cfg)
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(errWatch).Warn("config: watcher error")
			}
		}
	}()
	return watcher.Close, nil
}
