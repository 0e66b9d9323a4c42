package mint

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Aggregate picks the collection with the most events. Events are expected
// most-recent-first; the representative values come from the first event of
// the winning group. Equal-size groups resolve to the one that appears first.
func Aggregate(events []Event) (Candidate, error) {
	if len(events) == 0 {
		return Candidate{}, ErrNoData
	}

	groups := map[common.Address][]Event{}
	order := make([]common.Address, 0)
	for _, ev := range events {
		if _, seen := groups[ev.Collection]; !seen {
			order = append(order, ev.Collection)
		}
		groups[ev.Collection] = append(groups[ev.Collection], ev)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return len(groups[order[i]]) > len(groups[order[j]])
	})

	top := groups[order[0]]
	rep := top[0]
	return Candidate{
		Contract:       rep.Collection,
		CollectionName: rep.CollectionName,
		Price:          rep.Price,
		Currency:       rep.Currency,
		SampleCount:    len(top),
		TxHash:         rep.TxHash,
	}, nil
}
