/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/geoseis/slink/protocol"
)

// StreamConfig is one configured subscription: a (net, sta) pair plus
// the selectors to apply to it. Use registry.UniNet/registry.UniSta
// for uni-station mode.
type StreamConfig struct {
	Net       string   `yaml:"net"`
	Sta       string   `yaml:"sta"`
	Selectors []string `yaml:"selectors"`
}

// Config specifies how an Engine dials, negotiates with, and streams
// from one SeedLink server. It follows the teacher's config.go shape:
// a plain yaml-tagged struct with DefaultConfig/Validate/PrepareConfig.
type Config struct {
	Address string `yaml:"address"`

	Streams          []StreamConfig `yaml:"streams"`
	DefaultSelectors []string       `yaml:"default_selectors"`

	Dialup    bool `yaml:"dialup"`
	Batchmode bool `yaml:"batchmode"`
	Resume    bool `yaml:"resume"`

	BeginTime string `yaml:"begin_time"` // TIME-mode window start, overrides per-entry resume
	EndTime   string `yaml:"end_time"`

	NetworkTimeout    time.Duration `yaml:"network_timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	BufferCapacity int `yaml:"buffer_capacity"`

	StateFile           string `yaml:"state_file"`
	StateSaveInterval   int    `yaml:"state_save_interval"` // save every N delivered packets, 0 = only at shutdown
	ArchiveTemplate      string `yaml:"archive_template"`
	ArchiveIdleTimeout   time.Duration `yaml:"archive_idle_timeout"`
	ArchiveMaxOpenFiles  int    `yaml:"archive_max_open_files"`

	DSCP int `yaml:"dscp"`
}

// DefaultConfig returns a Config populated with the same conservative
// defaults slinktool historically shipped with.
func DefaultConfig() *Config {
	return &Config{
		NetworkTimeout:      600 * time.Second,
		ReconnectDelay:      30 * time.Second,
		KeepaliveInterval:   0, // disabled unless requested
		BufferCapacity:      64 * 1024,
		Resume:              true,
		StateSaveInterval:   0,
		ArchiveIdleTimeout:   300 * time.Second,
		ArchiveMaxOpenFiles: 64,
	}
}

// Validate checks the config is internally consistent, surfacing
// ErrConfigInvalid for anything that would otherwise only fail deep
// inside negotiation.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address must be set", ErrConfigInvalid)
	}
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("%w: network_timeout must be positive", ErrConfigInvalid)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect_delay must be positive", ErrConfigInvalid)
	}
	if c.BufferCapacity < minBufferCapacity {
		return fmt.Errorf("%w: buffer_capacity must be at least %d", ErrConfigInvalid, minBufferCapacity)
	}
	if c.BeginTime != "" {
		if _, err := protocol.ParseTime(c.BeginTime); err != nil {
			return fmt.Errorf("%w: begin_time: %v", ErrConfigInvalid, err)
		}
	}
	if c.EndTime != "" {
		if _, err := protocol.ParseTime(c.EndTime); err != nil {
			return fmt.Errorf("%w: end_time: %v", ErrConfigInvalid, err)
		}
	}
	uniCount := 0
	for _, s := range c.Streams {
		if s.Net == "" || s.Sta == "" {
			return fmt.Errorf("%w: stream entry missing net/sta", ErrConfigInvalid)
		}
		for _, sel := range s.Selectors {
			tok := sel
			if len(tok) > 0 && tok[0] == '!' {
				tok = tok[1:]
			}
			if err := protocol.ValidateSelector(tok); err != nil && tok != "" {
				return fmt.Errorf("%w: stream %s/%s: %v", ErrConfigInvalid, s.Net, s.Sta, err)
			}
		}
		if s.Net == "XX" && s.Sta == "UNI" {
			uniCount++
		}
	}
	if uniCount > 0 && uniCount != len(c.Streams) {
		return fmt.Errorf("%w: uni-station entry cannot be mixed with ordinary stream entries", ErrConfigInvalid)
	}
	if uniCount > 1 {
		return fmt.Errorf("%w: more than one uni-station entry configured", ErrConfigInvalid)
	}
	return nil
}

// ReadConfig loads a Config from a YAML file, starting from
// DefaultConfig so unset fields keep sane defaults.
func ReadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Overrides carries the CLI flags that may override an on-disk
// config, mirroring ptp/sptp/client's PrepareConfig/setFlags idiom:
// only fields the caller actually set on the command line take
// precedence over the file.
type Overrides struct {
	Address           *string
	Dialup            *bool
	Batchmode         *bool
	NetworkTimeout    *time.Duration
	ReconnectDelay    *time.Duration
	KeepaliveInterval *time.Duration
	DSCP              *int
}

// PrepareConfig loads cfgPath (or starts from defaults if empty),
// applies CLI overrides, logging each one, and validates the result.
func PrepareConfig(cfgPath string, ov Overrides) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
	}
	warn := func(name string) { log.Warningf("overriding %s from CLI flag", name) }
	if ov.Address != nil {
		warn("address")
		cfg.Address = *ov.Address
	}
	if ov.Dialup != nil {
		warn("dialup")
		cfg.Dialup = *ov.Dialup
	}
	if ov.Batchmode != nil {
		warn("batchmode")
		cfg.Batchmode = *ov.Batchmode
	}
	if ov.NetworkTimeout != nil {
		warn("network_timeout")
		cfg.NetworkTimeout = *ov.NetworkTimeout
	}
	if ov.ReconnectDelay != nil {
		warn("reconnect_delay")
		cfg.ReconnectDelay = *ov.ReconnectDelay
	}
	if ov.KeepaliveInterval != nil {
		warn("keepalive_interval")
		cfg.KeepaliveInterval = *ov.KeepaliveInterval
	}
	if ov.DSCP != nil {
		warn("dscp")
		cfg.DSCP = *ov.DSCP
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}
