package store

import (
	"math"
)

// ChunkRange invokes fn over [start,end) windows of at most chunkSize over a
// collection of length n. It stops at the first error.
func ChunkRange(n int, chunkSize int, fn func(start, end int) error) error {
	if n <= 0 || chunkSize <= 0 {
		return nil
	}
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings returns the input without duplicates, preserving first-seen
// order.
func DedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// CosineSimilarity returns the cosine similarity of two vectors, or 0 when
// either is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
