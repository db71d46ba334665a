package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GraphRAGConfig is the process-wide configuration object assembled at
// startup from three YAML files, mirroring the three-file config layout of
// the original pipeline (ontology/predicates/thresholds kept as separate
// concerns rather than one monolithic file).
type GraphRAGConfig struct {
	Ontology   OntologyConfig
	Predicates PredicateConfig
	Thresholds ThresholdConfig

	BuildVersion string
}

// Load reads the three config files from dir and fails fast if any is
// missing or malformed; there is no partial-config fallback.
func Load(dir string, buildVersion string) (*GraphRAGConfig, error) {
	cfg := &GraphRAGConfig{BuildVersion: buildVersion}

	if err := readYAML(dir+"/ontology.yaml", &cfg.Ontology); err != nil {
		return nil, fmt.Errorf("config: load ontology: %w", err)
	}
	if err := readYAML(dir+"/predicates.yaml", &cfg.Predicates); err != nil {
		return nil, fmt.Errorf("config: load predicates: %w", err)
	}
	if err := readYAML(dir+"/thresholds.yaml", &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("config: load thresholds: %w", err)
	}

	return cfg, nil
}

func readYAML(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
