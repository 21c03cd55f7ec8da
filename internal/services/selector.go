package services

import (
	"slices"

	"meal-match-backend/internal/models"
)

// SelectPairs partitions each timeslot's users into consecutive pairs,
// processing timeslots in models.Timeslots order. A paired user is removed
// from every later timeslot before that timeslot is processed, so no user is
// selected twice. An odd user out stays unpaired for this run.
//
// The index is not modified; removals happen on a working copy.
func SelectPairs(idx *TimeslotIndex) []models.Pair {
	if idx == nil {
		return nil
	}

	working := make(map[models.Timeslot][]string, len(idx.TimeslotToUsers))
	for slot, users := range idx.TimeslotToUsers {
		working[slot] = slices.Clone(users)
	}

	var pairs []models.Pair
	for _, slot := range models.Timeslots {
		users := working[slot]
		for i := 0; i+1 < len(users); i += 2 {
			pair := models.Pair{A: users[i], B: users[i+1]}
			pairs = append(pairs, pair)

			for _, id := range []string{pair.A, pair.B} {
				for _, other := range idx.UserToTimeslots[id] {
					if other == slot {
						continue
					}
					working[other] = slices.DeleteFunc(working[other], func(u string) bool {
						return u == id
					})
				}
			}
		}
	}
	return pairs
}
