package intent

import (
	"context"
	"fmt"

	"github.com/arthmitra/arthmitra/internal/embedding"
)

// Result is a classification outcome. Score is the best cosine similarity
// observed across all exemplars; Intent is Unknown whenever Score is below
// Threshold.
type Result struct {
	Intent Intent
	Score  float64
}

type exemplarEntry struct {
	intent  Intent
	vectors [][]float32
}

// ExemplarIndex holds one vector per exemplar phrase per intent. Built once
// at startup and immutable afterwards; safe for concurrent reads.
type ExemplarIndex struct {
	entries []exemplarEntry
}

// BuildIndex embeds every exemplar phrase in declaration order. One batch
// call per intent, matching how the exemplar table was precomputed upstream.
func BuildIndex(ctx context.Context, embedder embedding.Embedder) (*ExemplarIndex, error) {
	entries := make([]exemplarEntry, 0, len(taxonomy))
	for _, def := range taxonomy {
		if len(def.Exemplars) == 0 {
			continue
		}
		vectors, err := embedder.EmbedBatch(ctx, def.Exemplars)
		if err != nil {
			return nil, fmt.Errorf("embed exemplars for %q: %w", def.Intent, err)
		}
		entries = append(entries, exemplarEntry{intent: def.Intent, vectors: vectors})
	}
	return &ExemplarIndex{entries: entries}, nil
}

// IndexFromVectors rebuilds an index from persisted exemplar vectors, keyed
// intent -> one vector per exemplar in declaration order. Every exemplar of
// every non-empty intent must be present.
func IndexFromVectors(vectors map[Intent][][]float32) (*ExemplarIndex, error) {
	entries := make([]exemplarEntry, 0, len(taxonomy))
	for _, def := range taxonomy {
		if len(def.Exemplars) == 0 {
			continue
		}
		vecs, ok := vectors[def.Intent]
		if !ok {
			return nil, fmt.Errorf("missing vectors for intent %q", def.Intent)
		}
		if len(vecs) != len(def.Exemplars) {
			return nil, fmt.Errorf("intent %q: got %d vectors, want %d", def.Intent, len(vecs), len(def.Exemplars))
		}
		entries = append(entries, exemplarEntry{intent: def.Intent, vectors: vecs})
	}
	return &ExemplarIndex{entries: entries}, nil
}

// Vectors exposes the index content for persistence, keyed by intent with
// vectors in exemplar declaration order.
func (ix *ExemplarIndex) Vectors() map[Intent][][]float32 {
	out := make(map[Intent][][]float32, len(ix.entries))
	for _, entry := range ix.entries {
		out[entry.intent] = entry.vectors
	}
	return out
}

// Classifier resolves text to the taxonomy intent whose exemplars it most
// resembles. Pure given the embedding cache; no state beyond the immutable
// index.
type Classifier struct {
	embedder embedding.Embedder
	index    *ExemplarIndex
}

func NewClassifier(embedder embedding.Embedder, index *ExemplarIndex) *Classifier {
	return &Classifier{embedder: embedder, index: index}
}

// Classify embeds the input once and takes, per intent, the maximum cosine
// similarity across that intent's exemplars. The globally best intent wins;
// ties go to the first-declared intent. A winning score below Threshold
// forces Unknown. Callers reject blank input before calling.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	inputVec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}

	best := Result{Intent: Unknown, Score: -1}
	for _, entry := range c.index.entries {
		for _, exemplarVec := range entry.vectors {
			score, err := embedding.CosineSimilarity(inputVec, exemplarVec)
			if err != nil {
				return Result{}, fmt.Errorf("classify %q: %w", entry.intent, err)
			}
			// Strict > keeps the first-declared intent on ties.
			if score > best.Score {
				best = Result{Intent: entry.intent, Score: score}
			}
		}
	}

	if best.Score < Threshold {
		best.Intent = Unknown
	}
	return best, nil
}
