package engine

import "fmt"

// explainScore labels a cosine similarity with a coarse quality bucket and
// the score as a percentage, e.g. "excellent match (92.3%)". Bucket
// boundaries are exclusive: exactly 0.8 is a good match, not excellent.
func explainScore(score float64) string {
	var bucket string
	switch {
	case score > 0.8:
		bucket = "excellent match"
	case score > 0.6:
		bucket = "good match"
	case score > 0.4:
		bucket = "fair match"
	default:
		bucket = "weak match"
	}
	return fmt.Sprintf("%s (%.1f%%)", bucket, score*100)
}
