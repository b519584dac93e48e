package bridgesim

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is a YAML-loadable simulator setup. cmd/milight-sim applies
// one on top of its flag defaults; unset fields leave the config
// untouched.
//
//	hardware_addr: "F0:FE:6B:12:34:56"
//	session_id1: 0x5A
//	session_id2: 0xC3
//	faults:
//	  drop_handshakes: 2
//	  wrong_ack_sequence: true
type Script struct {
	// HardwareAddr is the MAC to advertise, in net.ParseMAC notation.
	HardwareAddr string `yaml:"hardware_addr,omitempty"`

	// SessionID1 and SessionID2 are the identifiers the handshake
	// hands out.
	SessionID1 uint8 `yaml:"session_id1,omitempty"`
	SessionID2 uint8 `yaml:"session_id2,omitempty"`

	// Faults declares protocol deviations.
	Faults Faults `yaml:"faults,omitempty"`
}

// ParseScript parses a Script from YAML bytes and validates it.
func ParseScript(data []byte) (*Script, error) {
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if sc.HardwareAddr != "" {
		if _, err := net.ParseMAC(sc.HardwareAddr); err != nil {
			return nil, fmt.Errorf("parsing script: %w", err)
		}
	}
	if sc.Faults.DropDiscoveries < 0 || sc.Faults.DropHandshakes < 0 || sc.Faults.DropCommands < 0 {
		return nil, fmt.Errorf("parsing script: drop counts must not be negative")
	}
	return &sc, nil
}

// LoadScript loads a Script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	sc, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Apply copies the script's settings onto config. The MAC and session
// identifiers only override when set; faults replace config.Faults
// wholesale.
func (sc *Script) Apply(config *Config) error {
	if sc.HardwareAddr != "" {
		mac, err := net.ParseMAC(sc.HardwareAddr)
		if err != nil {
			return fmt.Errorf("applying script: %w", err)
		}
		config.HardwareAddr = mac
	}
	if sc.SessionID1 != 0 {
		config.SessionID1 = sc.SessionID1
	}
	if sc.SessionID2 != 0 {
		config.SessionID2 = sc.SessionID2
	}
	config.Faults = sc.Faults
	return nil
}
