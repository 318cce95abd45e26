package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a YAML configuration file, normalizing the
// legacy publish_mode "both" alias along the way.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	normalizeAliases(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// normalizeAliases rewrites legacy publish_mode spellings in place. The
// admin UI that authors these files predates on_change_and_interval and
// still occasionally emits "both".
func normalizeAliases(cfg *Config) {
	for li := range cfg.Lines {
		for ni := range cfg.Lines[li].Nodes {
			params := cfg.Lines[li].Nodes[ni].Params
			for pi := range params {
				if params[pi].PublishMode == legacyBoth {
					params[pi].PublishMode = OnChangeAndInterval
				}
			}
		}
	}
}
