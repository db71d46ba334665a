package config

// PredicateConfig is the governed predicate whitelist loaded from
// config/predicates.yaml: the standard predicate set, surface-form to
// canonical-predicate mappings, per-predicate type constraints, and the
// strategy applied when a surface predicate matches neither.
type PredicateConfig struct {
	Standard         []string                     `yaml:"standard"`
	Mappings         map[string]string            `yaml:"mappings"`
	TypeConstraints  []PredicateTypeConstraint     `yaml:"type_constraints"`
	UnmatchedStrategy string                      `yaml:"unmatched_strategy"` // "other" | "embedding_fallback"
}

type PredicateTypeConstraint struct {
	Predicate   string `yaml:"predicate"`
	SourceType  string `yaml:"source_type"`
	TargetType  string `yaml:"target_type"`
}

func (p *PredicateConfig) IsStandard(predicate string) bool {
	for _, s := range p.Standard {
		if s == predicate {
			return true
		}
	}
	return false
}

func (p *PredicateConfig) Normalize(surface string) (string, bool) {
	canon, ok := p.Mappings[surface]
	return canon, ok
}

// ValidateTypeConstraint is conservative-allow: a predicate with no
// registered constraint is permitted between any node types, matching the
// original governor's fallback behavior.
func (p *PredicateConfig) ValidateTypeConstraint(predicate, sourceType, targetType string) bool {
	found := false
	for _, c := range p.TypeConstraints {
		if c.Predicate != predicate {
			continue
		}
		found = true
		if (c.SourceType == "" || c.SourceType == sourceType) &&
			(c.TargetType == "" || c.TargetType == targetType) {
			return true
		}
	}
	return !found
}

// OntologyConfig is the node/relationship type schema loaded from
// config/ontology.yaml.
type OntologyConfig struct {
	NodeTypes         map[string]NodeTypeSchema `yaml:"node_types"`
	RelationshipTypes []string                  `yaml:"relationship_types"`
	DomainConstraints map[string][]string       `yaml:"domain_constraints"`
}

type NodeTypeSchema struct {
	RequiredProperties []string `yaml:"required_properties"`
	AllowedDomains     []string `yaml:"allowed_domains"`
}

func (o *OntologyConfig) RequiredProperties(nodeType string) []string {
	return o.NodeTypes[nodeType].RequiredProperties
}

func (o *OntologyConfig) AllowedDomains(nodeType string) []string {
	return o.NodeTypes[nodeType].AllowedDomains
}

func (o *OntologyConfig) IsKnownRelationship(rel string) bool {
	for _, r := range o.RelationshipTypes {
		if r == rel {
			return true
		}
	}
	return false
}

// ThresholdConfig is the single catch-all numeric/string knob table loaded
// from config/thresholds.yaml, namespaced by pipeline stage.
type ThresholdConfig struct {
	Chunking            map[string]float64 `yaml:"chunking"`
	Coreference         map[string]float64 `yaml:"coreference"`
	EntityLinking        map[string]float64 `yaml:"entity_linking"`
	ClaimExtraction      map[string]float64 `yaml:"claim_extraction"`
	ThemeBuilding        map[string]float64 `yaml:"theme_building"`
	PredicateGovernance  map[string]float64 `yaml:"predicate_governance"`
	Query                map[string]float64 `yaml:"query"`
	Metrics              map[string]float64 `yaml:"metrics"`
	Embedding            map[string]float64 `yaml:"embedding"`
	Performance          map[string]float64 `yaml:"performance"`
}

func get(m map[string]float64, key string, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func (t *ThresholdConfig) ChunkingF(key string, fallback float64) float64    { return get(t.Chunking, key, fallback) }
func (t *ThresholdConfig) CorefF(key string, fallback float64) float64       { return get(t.Coreference, key, fallback) }
func (t *ThresholdConfig) LinkingF(key string, fallback float64) float64     { return get(t.EntityLinking, key, fallback) }
func (t *ThresholdConfig) ClaimsF(key string, fallback float64) float64      { return get(t.ClaimExtraction, key, fallback) }
func (t *ThresholdConfig) ThemesF(key string, fallback float64) float64      { return get(t.ThemeBuilding, key, fallback) }
func (t *ThresholdConfig) PredicatesF(key string, fallback float64) float64  { return get(t.PredicateGovernance, key, fallback) }
func (t *ThresholdConfig) QueryF(key string, fallback float64) float64       { return get(t.Query, key, fallback) }
func (t *ThresholdConfig) MetricsF(key string, fallback float64) float64     { return get(t.Metrics, key, fallback) }
func (t *ThresholdConfig) EmbeddingF(key string, fallback float64) float64   { return get(t.Embedding, key, fallback) }
func (t *ThresholdConfig) PerfF(key string, fallback float64) float64        { return get(t.Performance, key, fallback) }

func (t *ThresholdConfig) ChunkingI(key string, fallback int) int { return int(get(t.Chunking, key, float64(fallback))) }
func (t *ThresholdConfig) QueryI(key string, fallback int) int    { return int(get(t.Query, key, float64(fallback))) }
func (t *ThresholdConfig) CorefI(key string, fallback int) int    { return int(get(t.Coreference, key, float64(fallback))) }
