package service

import (
	"math/rand"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
)

// pickWinners selects k distinct participants uniformly at random without
// replacement using a partial Fisher-Yates shuffle: every k-subset is equally
// likely regardless of join order. The input slice is not modified. When
// k >= len(participants) everyone wins.
func pickWinners(rnd *rand.Rand, participants []model.Participant, k int) []model.Participant {
	if k <= 0 || len(participants) == 0 {
		return nil
	}
	if k > len(participants) {
		k = len(participants)
	}

	pool := make([]model.Participant, len(participants))
	copy(pool, participants)

	for i := 0; i < k; i++ {
		j := i + rnd.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
