package vectordb

import (
	"math"
	"sort"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

// rankBySimilarity scores chunks against query and returns the best topK,
// highest first.
func rankBySimilarity(chunks []entities.Chunk, query []float32, topK int) []entities.QueryResult {
	results := make([]entities.QueryResult, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, entities.QueryResult{
			Chunk:     chunk,
			Score:     cosineSimilarity(query, chunk.Embedding),
			SourceDoc: chunk.SourceDoc,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
