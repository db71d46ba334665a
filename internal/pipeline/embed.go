package pipeline

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
)

// EmbedVectors calls the configured embedding provider once for the whole
// batch. It is best-effort: a nil LLM client (no provider configured, or a
// unit test exercising a stage in isolation) or a provider error yields a
// nil slice rather than failing the caller, the same degrade-gracefully
// contract predicates.embeddingFallback already applies to embedding calls.
func EmbedVectors(ctx context.Context, pctx *Context, texts []string) [][]float32 {
	if pctx == nil || pctx.LLM == nil || len(texts) == 0 {
		return nil
	}
	out, err := pctx.LLM.Embed(ctx, texts)
	if err != nil {
		if pctx.Log != nil {
			pctx.Log.Warn("pipeline: embedding batch failed, continuing without vectors", "count", len(texts), "error", err)
		}
		return nil
	}
	return out
}

// EmbedBatch is EmbedVectors marshaled straight into the jsonb column shape
// every embeddable domain row (Chunk, Concept, Claim, Theme) stores its
// vector in. The returned slice is index-aligned with texts; an entry is a
// nil datatypes.JSON wherever embedding was skipped or failed for that item.
func EmbedBatch(ctx context.Context, pctx *Context, texts []string) []datatypes.JSON {
	out := make([]datatypes.JSON, len(texts))
	vectors := EmbedVectors(ctx, pctx, texts)
	if len(vectors) != len(texts) {
		return out
	}
	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[i] = datatypes.JSON(raw)
	}
	return out
}

// DecodeEmbedding reverses EmbedBatch's marshaling for callers (graphservice's
// vector-index sync) that need the float slice back out of a stored jsonb
// column.
func DecodeEmbedding(raw datatypes.JSON) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
