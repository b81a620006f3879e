package score

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// metric is a parsed metric name such as map, p@10 or ndcg@20.
type metric struct {
	name string
	kind string
	k    int
}

func parseMetric(name string) (metric, error) {
	kind, depth, found := strings.Cut(name, "@")
	if !found {
		if kind != "map" {
			return metric{}, internalerr.Config("%s is not a valid metric", name)
		}
		return metric{name: name, kind: kind}, nil
	}
	k, err := strconv.Atoi(depth)
	if err != nil || k <= 0 {
		return metric{}, internalerr.Config("%s is not a valid metric", name)
	}
	switch kind {
	case "p", "ndcg", "recall":
		return metric{name: name, kind: kind, k: k}, nil
	}
	return metric{}, internalerr.Config("%s is not a valid metric", name)
}

// compute evaluates the metric for one ranked list against the judgments
// for that query. Judgments above zero are relevant.
func (m metric) compute(ranked []string, rels map[string]int) float64 {
	switch m.kind {
	case "map":
		return averagePrecision(ranked, rels)
	case "p":
		return precisionAt(m.k, ranked, rels)
	case "ndcg":
		return ndcgAt(m.k, ranked, rels)
	case "recall":
		return recallAt(m.k, ranked, rels)
	}
	return 0
}

func relevantCount(rels map[string]int) int {
	count := 0
	for _, rel := range rels {
		if rel > 0 {
			count++
		}
	}
	return count
}

func averagePrecision(ranked []string, rels map[string]int) float64 {
	total := relevantCount(rels)
	if total == 0 {
		return 0
	}
	sum := 0.0
	found := 0
	for i, doc := range ranked {
		if rels[doc] > 0 {
			found++
			sum += float64(found) / float64(i+1)
		}
	}
	return sum / float64(total)
}

func precisionAt(k int, ranked []string, rels map[string]int) float64 {
	found := 0
	for i, doc := range ranked {
		if i >= k {
			break
		}
		if rels[doc] > 0 {
			found++
		}
	}
	return float64(found) / float64(k)
}

func recallAt(k int, ranked []string, rels map[string]int) float64 {
	total := relevantCount(rels)
	if total == 0 {
		return 0
	}
	found := 0
	for i, doc := range ranked {
		if i >= k {
			break
		}
		if rels[doc] > 0 {
			found++
		}
	}
	return float64(found) / float64(total)
}

func ndcgAt(k int, ranked []string, rels map[string]int) float64 {
	dcg := 0.0
	for i, doc := range ranked {
		if i >= k {
			break
		}
		if rel := rels[doc]; rel > 0 {
			dcg += float64(rel) / math.Log2(float64(i+2))
		}
	}
	gains := make([]int, 0, len(rels))
	for _, rel := range rels {
		if rel > 0 {
			gains = append(gains, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(gains)))
	ideal := 0.0
	for i, rel := range gains {
		if i >= k {
			break
		}
		ideal += float64(rel) / math.Log2(float64(i+2))
	}
	if ideal == 0 {
		return 0
	}
	return dcg / ideal
}
