// Package config loads the optional YAML configuration file shared by
// the command-line tools. File values overlay the library defaults;
// command-line flags overlay both.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/milight-protocol/milight-go/pkg/session"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// Settings is the fully resolved tool configuration.
type Settings struct {
	// Addr is the bridge address.
	Addr string

	// Port is the bridge control port.
	Port uint16

	// Timeout bounds each receive while waiting for a reply.
	Timeout time.Duration

	// Retries bounds handshake and command attempts.
	Retries int

	// StrictHandshake rejects session replies with mismatched headers.
	StrictHandshake bool

	// Zone is the default zone commands address (0 = all zones).
	Zone uint8

	// LampType is the default device class commands address.
	LampType wire.LampType
}

// Defaults returns the library defaults.
func Defaults() Settings {
	return Settings{
		Addr:     wire.DefaultBridgeAddr,
		Port:     wire.DefaultPort,
		Timeout:  session.DefaultReceiveTimeout,
		Retries:  session.DefaultRetries,
		Zone:     wire.ZoneAll,
		LampType: wire.LampRGBWW,
	}
}

// File is the on-disk configuration. Every field is optional; unset
// fields keep whatever the Settings already hold.
//
//	bridge:
//	  addr: 192.168.1.50
//	  port: 5987
//	session:
//	  timeout: 2s
//	  retries: 5
//	  strict_handshake: false
//	control:
//	  zone: 1
//	  lamp_type: rgbww
type File struct {
	Bridge struct {
		Addr string `yaml:"addr,omitempty"`
		Port uint16 `yaml:"port,omitempty"`
	} `yaml:"bridge,omitempty"`

	Session struct {
		Timeout         string `yaml:"timeout,omitempty"`
		Retries         int    `yaml:"retries,omitempty"`
		StrictHandshake bool   `yaml:"strict_handshake,omitempty"`
	} `yaml:"session,omitempty"`

	Control struct {
		Zone     int    `yaml:"zone,omitempty"`
		LampType string `yaml:"lamp_type,omitempty"`
	} `yaml:"control,omitempty"`
}

// Parse parses and validates a configuration file from YAML bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	settings := Defaults()
	if err := f.Apply(&settings); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load loads a configuration file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Apply overlays the file's set fields onto settings.
func (f *File) Apply(settings *Settings) error {
	if f.Bridge.Addr != "" {
		settings.Addr = f.Bridge.Addr
	}
	if f.Bridge.Port != 0 {
		settings.Port = f.Bridge.Port
	}

	if f.Session.Timeout != "" {
		timeout, err := time.ParseDuration(f.Session.Timeout)
		if err != nil {
			return fmt.Errorf("config session.timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("config session.timeout: must be positive, got %s", timeout)
		}
		settings.Timeout = timeout
	}
	if f.Session.Retries != 0 {
		if f.Session.Retries < 0 {
			return fmt.Errorf("config session.retries: must be positive, got %d", f.Session.Retries)
		}
		settings.Retries = f.Session.Retries
	}
	if f.Session.StrictHandshake {
		settings.StrictHandshake = true
	}

	if f.Control.Zone != 0 {
		if f.Control.Zone < 0 || f.Control.Zone > int(wire.MaxZone) {
			return fmt.Errorf("config control.zone: must be 0..%d, got %d", wire.MaxZone, f.Control.Zone)
		}
		settings.Zone = uint8(f.Control.Zone)
	}
	if f.Control.LampType != "" {
		lampType, ok := wire.LampTypeByName(f.Control.LampType)
		if !ok {
			return fmt.Errorf("config control.lamp_type: unknown type %q (use: bridge, wallwasher, rgbww)", f.Control.LampType)
		}
		settings.LampType = lampType
	}
	return nil
}
