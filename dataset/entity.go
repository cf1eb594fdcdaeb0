package dataset

import (
	"math"
	"sort"
)

// magnitudeTolerance is the cutoff below which an entity's sentiment
// magnitude counts as zero.
const magnitudeTolerance = 1e-3

// Entity is one entity-sentiment record.
type Entity struct {
	Type               string  `json:"type"`
	Name               string  `json:"name"`
	Salience           float64 `json:"salience"`
	SentimentScore     float64 `json:"sentimentScore"`
	SentimentMagnitude float64 `json:"sentimentMagnitude"`
}

// EntityList is ordered by descending salience.
type EntityList []Entity

// NewEntityList drops entities without sentiment and sorts the rest by
// descending salience. Ties keep their input order.
func NewEntityList(entities []Entity) EntityList {
	list := make(EntityList, 0, len(entities))
	for _, e := range entities {
		if math.Abs(e.SentimentMagnitude) <= magnitudeTolerance {
			continue
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Salience > list[j].Salience
	})
	return list
}
