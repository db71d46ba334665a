package pipeline

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-backend/internal/config"
	"github.com/yungbote/neurobridge-backend/internal/platform/aliasdict"
	"github.com/yungbote/neurobridge-backend/internal/platform/llmclient"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
	"github.com/yungbote/neurobridge-backend/internal/platform/metrics"
	"github.com/yungbote/neurobridge-backend/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-backend/internal/platform/vectorindex"

	repos "github.com/yungbote/neurobridge-backend/internal/data/repos/graphrag"
)

// Context is the explicit dependency container every stage receives
// instead of reaching for package-level singletons: config, provider
// clients, storage handles, and the compiled alias automaton for the
// current build. Stages take a *Context by value semantics (never mutate
// it) and return a typed result instead of writing back into it.
type Context struct {
	Config *config.GraphRAGConfig
	Log    *logger.Logger

	LLM      llmclient.Client
	Vectors  vectorindex.Index
	AliasDict *aliasdict.Dictionary

	Postgres *gorm.DB
	Neo4j    *neo4jdb.Client

	Documents        repos.DocumentRepo
	Chunks           repos.ChunkRepo
	Concepts         repos.ConceptRepo
	Aliases          repos.AliasRepo
	Mentions         repos.MentionRepo
	Claims           repos.ClaimRepo
	ClaimConcepts    repos.ClaimConceptRepo
	ClaimRelations   repos.ClaimRelationRepo
	ConceptRelations repos.ConceptRelationRepo
	PredicateReviews repos.PredicateReviewRepo
	PredicateCorrections repos.PredicateCorrectionRepo
	Themes           repos.ThemeRepo
	ThemeMembers     repos.ThemeMemberRepo
	FeedbackEvents   repos.FeedbackEventRepo
	MetricsSnapshots repos.MetricsSnapshotRepo

	Metrics *metrics.Registry
}

// BuildVersion is the tag every row written during this run carries, so a
// rebuild of the same document can be rolled back atomically by deleting
// everything at one build_version without touching prior builds.
func (c *Context) BuildVersion() string {
	return c.Config.BuildVersion
}

// WithTx returns a shallow copy of the context whose Postgres handle is
// the given transaction, so a stage that needs a single all-or-nothing
// write can scope one without threading *gorm.DB through every call.
func (c *Context) WithTx(tx *gorm.DB) *Context {
	clone := *c
	clone.Postgres = tx
	return &clone
}
