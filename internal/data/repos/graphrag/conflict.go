package graphrag

import "gorm.io/gorm/clause"

// clauseOnConflictIncrement builds an upsert that increments Count on the
// (raw_predicate, canonical_target) unique pair, backing
// PredicateCorrectionRepo.Increment's recurrence counter.
func clauseOnConflictIncrement() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "raw_predicate"}, {Name: "canonical_target"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":      clause.Expr{SQL: "graphrag_predicate_correction_count.count + 1"},
			"updated_at": clause.Expr{SQL: "now()"},
		}),
	}
}

// onConflictDoNothing builds an ON CONFLICT (columns) DO NOTHING clause,
// used by the idempotent batch-insert repo methods (aliases, mentions)
// where a rebuild over the same document should not error on rows it
// already wrote. Columns must match a composite unique index exactly.
func onConflictDoNothing(columns ...string) clause.OnConflict {
	cols := make([]clause.Column, len(columns))
	for i, c := range columns {
		cols[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{
		Columns:   cols,
		DoNothing: true,
	}
}
