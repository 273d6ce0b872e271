package lsprop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/fuda"
)

// ErrHeaderConflict is returned when the trace and baggage headers share a name.
var ErrHeaderConflict = errors.New("lsprop: trace and baggage headers must differ")

// LoadConfig reads Config from a YAML or JSON file. Environment variables
// override file values, then defaults and validation apply.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := fuda.LoadFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return checkHeaders(&cfg)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := fuda.LoadBytes(data, &cfg); err != nil {
		return nil, err
	}

	return checkHeaders(&cfg)
}

// checkHeaders rejects header names that would make the two headers collide
// on a case-insensitive carrier.
func checkHeaders(cfg *Config) (*Config, error) {
	codec := cfg.Codec()
	if strings.EqualFold(codec.TraceHeader(), codec.BaggageHeader()) {
		return nil, fmt.Errorf("%w: %q", ErrHeaderConflict, codec.TraceHeader())
	}

	return cfg, nil
}
