// Package config handles the TOML configuration of the atic machine.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ezrec/atic/vm"
)

const (
	ENTRY = "Main.main" // Default entry function.

	MIN_STACK_SIZE       = vm.STACK_SIZE
	MIN_CALL_STACK_SIZE  = vm.CALL_STACK_SIZE
	MIN_CALL_BUFFER_SIZE = vm.CALL_BUFFER_SIZE
)

// Config is the machine configuration.
type Config struct {
	Entry   string `toml:"entry"`
	Verbose bool   `toml:"verbose"`
	VM      VM     `toml:"vm"`
}

// VM configures the VM limits.
type VM struct {
	StackSize      int `toml:"stack-size"`
	CallStackSize  int `toml:"call-stack-size"`
	CallBufferSize int `toml:"call-buffer-size"`
	GcThreshold    int `toml:"gc-threshold"` // 0 retains every allocation.
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Entry: ENTRY,
		VM: VM{
			StackSize:      vm.STACK_SIZE,
			CallStackSize:  vm.CALL_STACK_SIZE,
			CallBufferSize: vm.CALL_BUFFER_SIZE,
		},
	}
}

// Load reads a configuration file. Keys absent from the file keep their
// defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if len(path) == 0 {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a TOML document over the defaults and validates it.
func Parse(text string) (*Config, error) {
	cfg := Default()

	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, ErrConfigUnknown(undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the limits against their minimums.
func (cfg *Config) Validate() error {
	switch {
	case len(cfg.Entry) == 0:
		return ErrConfig("entry")
	case cfg.VM.StackSize < MIN_STACK_SIZE:
		return ErrConfig("vm.stack-size")
	case cfg.VM.CallStackSize < MIN_CALL_STACK_SIZE:
		return ErrConfig("vm.call-stack-size")
	case cfg.VM.CallBufferSize < MIN_CALL_BUFFER_SIZE:
		return ErrConfig("vm.call-buffer-size")
	case cfg.VM.GcThreshold < 0:
		return ErrConfig("vm.gc-threshold")
	}
	return nil
}

// Options returns the VM options for the configuration.
func (cfg *Config) Options() vm.Options {
	return vm.Options{
		StackSize:      cfg.VM.StackSize,
		CallStackSize:  cfg.VM.CallStackSize,
		CallBufferSize: cfg.VM.CallBufferSize,
		GcThreshold:    cfg.VM.GcThreshold,
		Verbose:        cfg.Verbose,
	}
}
