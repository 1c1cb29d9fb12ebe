// Package config loads the helper's runtime configuration from the
// environment.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

const (
	// CommFDEnv names the control socket handed over by the requesting process
	CommFDEnv = "_FUSE_COMMFD"

	// EnvPrefix is prepended to every other environment key
	EnvPrefix = "FUSERMOUNT"
)

// Config represents the helper configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (_FUSE_COMMFD, FUSERMOUNT_*)
//  2. Default values
type Config struct {
	// CommFD is the control socket descriptor; nil when _FUSE_COMMFD is unset.
	// It is only required in mount mode, so it is validated by RequireCommFD.
	CommFD *int `mapstructure:"-"`

	// DevicePath is the FUSE driver device node
	DevicePath string `mapstructure:"device" validate:"required,startswith=/"`

	// Source is the mount source string
	Source string `mapstructure:"source" validate:"required"`

	// FSType is the filesystem type passed to mount(2)
	FSType string `mapstructure:"fstype" validate:"required"`

	// Verbosity is the klog verbosity level
	Verbosity int `mapstructure:"verbosity" validate:"gte=0,lte=10"`

	// MetricsFile is an optional node_exporter textfile collector target
	MetricsFile string `mapstructure:"metrics_file" validate:"omitempty,startswith=/"`

	// Audit enables security audit events
	Audit bool `mapstructure:"audit"`

	// commFDErr holds a malformed _FUSE_COMMFD until mount mode asks for it
	commFDErr error
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode configuration: %w", utils.ErrConfig, err)
	}

	cfg.CommFD, cfg.commFDErr = parseCommFD(v)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers default values for every key, which also makes
// AutomaticEnv pick the keys up during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("device", mount.DefaultDevicePath)
	v.SetDefault("source", mount.DefaultSource)
	v.SetDefault("fstype", mount.DefaultFSType)
	v.SetDefault("verbosity", 2)
	v.SetDefault("metrics_file", "")
	v.SetDefault("audit", true)
}

// parseCommFD reads the unprefixed _FUSE_COMMFD variable
func parseCommFD(v *viper.Viper) (*int, error) {
	if err := v.BindEnv("comm_fd", CommFDEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", CommFDEnv, err)
	}
	if !v.IsSet("comm_fd") {
		return nil, nil
	}

	raw := strings.TrimSpace(v.GetString("comm_fd"))
	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("%w: %s=%q is not a descriptor number", utils.ErrConfig, CommFDEnv, raw)
	}
	return &fd, nil
}

// Validate checks struct constraints
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrConfig, err)
	}
	return nil
}

// RequireCommFD returns the control socket descriptor or ErrConfig. Only
// mount mode calls it, so a malformed _FUSE_COMMFD does not fail an unmount.
func (c *Config) RequireCommFD() (int, error) {
	if c != nil && c.commFDErr != nil {
		return -1, c.commFDErr
	}
	if c == nil || c.CommFD == nil {
		return -1, fmt.Errorf("%w: %s is not set", utils.ErrConfig, CommFDEnv)
	}
	return *c.CommFD, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		DevicePath: mount.DefaultDevicePath,
		Source:     mount.DefaultSource,
		FSType:     mount.DefaultFSType,
		Verbosity:  2,
		Audit:      true,
	}
}
