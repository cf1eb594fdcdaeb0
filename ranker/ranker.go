// Package ranker orders the entities found across a dataset by how
// prominent they were in the discussion.
package ranker

import (
	"math"
	"sort"
	"strings"

	"reddit-nlp/dataset"
)

// RankedEntity is an entity with its accumulated scores.
type RankedEntity struct {
	Name     string
	Type     string
	Mentions int
	// SalienceScore is the summed salience over every mention.
	SalienceScore float64
	// PopularityScore weights each mention's salience by log10 of the
	// score of the post or comment it appeared in.
	PopularityScore float64
	// Sentiment is the salience-weighted mean sentiment score.
	Sentiment  float64
	FinalScore float64

	sentimentSum float64
}

// Ranker scores entities from per-unit entity lists.
type Ranker struct {
	salienceWeight   float64
	popularityWeight float64
}

// NewRanker creates a ranker with the given weighting factors.
func NewRanker(salienceWeight, popularityWeight float64) *Ranker {
	return &Ranker{
		salienceWeight:   salienceWeight,
		popularityWeight: popularityWeight,
	}
}

// Rank scores the entities of every selftext and comment in ds and returns
// at most limit of them, best first. A limit of 0 or less returns all.
// Aggregate entities are left out since they repeat the per-unit ones.
func (r *Ranker) Rank(ds *dataset.Dataset, limit int) []RankedEntity {
	if ds == nil {
		return nil
	}

	byKey := make(map[string]*RankedEntity)
	add := func(list dataset.EntityList, unitScore int) {
		popularity := calculatePopularity(unitScore)
		for _, e := range list {
			key := e.Type + "\x00" + strings.ToLower(e.Name)
			re, ok := byKey[key]
			if !ok {
				re = &RankedEntity{Name: e.Name, Type: e.Type}
				byKey[key] = re
			}
			re.Mentions++
			re.SalienceScore += e.Salience
			re.PopularityScore += e.Salience * popularity
			re.sentimentSum += e.Salience * e.SentimentScore
		}
	}

	for _, t := range ds.OrderedThreads() {
		add(t.Entities, t.Score)
		for _, c := range t.OrderedComments() {
			add(c.Entities, c.Score)
		}
	}

	if len(byKey) == 0 {
		return nil
	}

	ranked := make([]RankedEntity, 0, len(byKey))
	for _, re := range byKey {
		if re.SalienceScore > 0 {
			re.Sentiment = re.sentimentSum / re.SalienceScore
		}
		re.FinalScore = re.SalienceScore*r.salienceWeight + re.PopularityScore*r.popularityWeight
		ranked = append(ranked, *re)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].Mentions != ranked[j].Mentions {
			return ranked[i].Mentions > ranked[j].Mentions
		}
		return ranked[i].Name < ranked[j].Name
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func calculatePopularity(score int) float64 {
	// log10(score + 1) to handle score of 0; downvoted units count as 0.
	if score < 0 {
		score = 0
	}
	return math.Log10(float64(score) + 1)
}
