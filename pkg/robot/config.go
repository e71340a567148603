package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultPort is used when no port is configured or given.
const DefaultPort = "/dev/ttyACM0"

// Role is the part an arm plays in teleoperation.
type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleLeader {
		return RoleFollower
	}
	return RoleLeader
}

// Device names one physical arm, e.g. so101 leader.
type Device struct {
	Family string // "so100" or "so101"
	Role   Role
}

// Name returns "<family>_<role>", the prefix of the arm's config files.
func (d Device) Name() string {
	return d.Family + "_" + string(d.Role)
}

// PortFile returns the path of the arm's port config.
func (d Device) PortFile() string {
	return d.Name() + "_motorbus_port.json"
}

// CalibrationFile returns the path of the arm's calibration.
func (d Device) CalibrationFile() string {
	return d.Name() + "_calibration.json"
}

// Peer returns the device on the other end of the relay.
func (d Device) Peer() Device {
	return Device{Family: d.Family, Role: d.Role.Peer()}
}

// PortConfig holds the serial port of one arm.
type PortConfig struct {
	Port string `json:"port"`
}

// LoadPortConfig loads a port config from a JSON file.
func LoadPortConfig(path string) (*PortConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("missing %s: run 'lerobot find-port' first", path)
	}
	if err != nil {
		return nil, err
	}
	var cfg PortConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("invalid config in %s: 'port' missing", path)
	}
	return &cfg, nil
}

// SaveTo saves the port config to a specific file
func (c *PortConfig) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvePort picks the port to use: an explicit port wins, then the
// device's port file, then DefaultPort.
func ResolvePort(explicit string, d Device) (port, source string) {
	if explicit != "" {
		return explicit, "command line"
	}
	if cfg, err := LoadPortConfig(d.PortFile()); err == nil {
		return cfg.Port, d.PortFile()
	}
	return DefaultPort, "default"
}
