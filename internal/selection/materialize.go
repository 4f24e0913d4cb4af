package selection

import (
	"fmt"
	mrand "math/rand/v2"

	"github.com/testhub/testhub-backend/internal/model"
)

// Item is one materialized question: its presentation position and, for
// choice questions, the shuffled option order with display ids.
type Item struct {
	Question  model.Question
	Position  int
	OptionMap []model.OptionRef
}

// Materialize fixes the presentation order of selected and shuffles the
// options of each choice question. Positions start at 1. The questions
// themselves are not mutated.
func Materialize(selected []model.Question, rng *mrand.Rand) []Item {
	order := permutation(rng, len(selected))
	items := make([]Item, len(selected))
	for pos, src := range order {
		q := selected[src]
		items[pos] = Item{
			Question:  q,
			Position:  pos + 1,
			OptionMap: shuffleOptions(q, rng),
		}
	}
	return items
}

func shuffleOptions(q model.Question, rng *mrand.Rand) []model.OptionRef {
	if !q.Type.IsChoice() || len(q.Options) == 0 {
		return nil
	}
	used := make(map[string]struct{}, len(q.Options))
	refs := make([]model.OptionRef, 0, len(q.Options))
	for _, idx := range permutation(rng, len(q.Options)) {
		id := displayID(rng)
		for _, dup := used[id]; dup; _, dup = used[id] {
			id = displayID(rng)
		}
		used[id] = struct{}{}
		refs = append(refs, model.OptionRef{DisplayID: id, Index: idx})
	}
	return refs
}

func displayID(rng *mrand.Rand) string {
	return fmt.Sprintf("o%08x", rng.Uint32())
}

// Resolve maps a display id back to the option index, or -1.
func Resolve(refs []model.OptionRef, displayID string) int {
	for _, r := range refs {
		if r.DisplayID == displayID {
			return r.Index
		}
	}
	return -1
}
