package loader

import (
	"io"

	yaml "gopkg.in/yaml.v2"
)

type SourceConfig struct {
	// Path points to a file holding a single entity object or an array of them
	Path string `yaml:"path"`
	Type string `yaml:"type"`
	// ContextLink overrides the @context the broker should expand against
	ContextLink string `yaml:"contextLink"`
}

type ConflictPolicy string

const (
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
	ConflictFail      ConflictPolicy = "fail"
)

type Config struct {
	Tenant     string         `yaml:"tenant"`
	OnConflict ConflictPolicy `yaml:"onConflict"`
	Sources    []SourceConfig `yaml:"sources"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.OnConflict == "" {
		cfg.OnConflict = ConflictOverwrite
	}

	return cfg, nil
}
