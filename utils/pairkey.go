package utils

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PairKey returns the canonical key for an unordered participant pair.
// Both orderings of the same two users produce the same key, which backs
// the partial unique index guarding open matches.
func PairKey(a, b primitive.ObjectID) string {
	ah, bh := a.Hex(), b.Hex()
	if ah < bh {
		return ah + ":" + bh
	}
	return bh + ":" + ah
}
