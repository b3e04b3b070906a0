// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blacktop/prebind/pkg/macho"
	"github.com/blacktop/prebind/pkg/segaddr"
	"github.com/spf13/viper"
)

// IgnoreNonPreboundEnv makes redo and check quietly skip files that are not prebound.
const IgnoreNonPreboundEnv = "RP_IGNORE_NON_PREBOUND"

// Options are the settings of one of the redo, unprebind or check commands.
type Options struct {
	Root              string `mapstructure:"root"`
	ExecutablePath    string `mapstructure:"executable-path"`
	Slide             string `mapstructure:"slide"`
	SegAddrTable      string `mapstructure:"seg-addr-table"`
	Output            string `mapstructure:"output"`
	Overwrite         bool   `mapstructure:"overwrite"`
	AllowMissingArchs bool   `mapstructure:"allow-missing-archs"`
	RequiredArch      string `mapstructure:"required-arch"`
	OnlyIfNeeded      bool   `mapstructure:"only-if-needed"`
	IgnoreNonPrebound bool   `mapstructure:"ignore-non-prebound"`
	CacheSize         int    `mapstructure:"cache-size"`
	Jobs              int    `mapstructure:"jobs"`

	// SlideTo is the parsed Slide, nil when none was given.
	SlideTo *uint32 `mapstructure:"-"`
}

// Config is the configuration struct
type Config struct {
	Verbose   bool    `mapstructure:"verbose"`
	Color     bool    `mapstructure:"color"`
	Redo      Options `mapstructure:"redo"`
	Unprebind Options `mapstructure:"unprebind"`
	Check     Options `mapstructure:"check"`
}

// Dir returns the directory holding the configuration file.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %v", err)
	}
	return filepath.Join(home, ".config", "prebind"), nil
}

// Command returns the options of the named command.
func (c *Config) Command(name string) (*Options, error) {
	switch name {
	case "redo":
		return &c.Redo, nil
	case "unprebind":
		return &c.Unprebind, nil
	case "check":
		return &c.Check, nil
	}
	return nil, fmt.Errorf("config: no options for command %s", name)
}

func (o *Options) verify(name string) error {
	if o.Slide != "" {
		if o.SegAddrTable != "" {
			return fmt.Errorf("%s: slide and seg-addr-table cannot be set at the same time", name)
		}
		addr, ok := segaddr.ParseAddr(o.Slide)
		if !ok {
			return fmt.Errorf("%s: invalid slide address %q", name, o.Slide)
		}
		o.SlideTo = &addr
	}
	if o.RequiredArch != "" {
		if _, ok := macho.ParseCPU(o.RequiredArch); !ok {
			return fmt.Errorf("%s: unknown architecture %q", name, o.RequiredArch)
		}
	}
	if o.Output != "" && o.Overwrite {
		return fmt.Errorf("%s: output and overwrite cannot be set at the same time", name)
	}
	if o.Jobs < 0 || o.CacheSize < 0 {
		return fmt.Errorf("%s: jobs and cache-size must not be negative", name)
	}
	return nil
}

func (c *Config) verify() error {
	for _, name := range []string{"redo", "unprebind", "check"} {
		o, _ := c.Command(name)
		if err := o.verify(name); err != nil {
			return err
		}
	}
	if c.Unprebind.Slide != "" || c.Unprebind.SegAddrTable != "" {
		return fmt.Errorf("unprebind: slide and seg-addr-table do not apply, the library is moved to zero")
	}
	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
