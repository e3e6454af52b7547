package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vote types. The numeric values are part of the stored format.
const (
	VoteUnofficial = 0
	VoteOfficial   = 1
	VoteJudge      = 2
)

// Tally classes assigned at finalization. Only final and judge votes are
// counted; unofficial votes are displayed but never counted.
const (
	CountedFinal      = "final"
	CountedJudge      = "judge"
	CountedUnofficial = "unofficial"
)

// Vote is an immutable weighted ballot: 100 points split between the two
// camps. At most one vote per (match, voter, type).
type Vote struct {
	MatchID      string             `bson:"matchId" json:"matchId"`
	VoterID      primitive.ObjectID `bson:"voterId" json:"voterId"`
	VoterName    string             `bson:"voterName" json:"voterName"`
	Timestamp    int64              `bson:"timestamp" json:"timestamp"`
	ACampPoints  int                `bson:"aCampPoints" json:"aCampPoints"`
	BCampPoints  int                `bson:"bCampPoints" json:"bCampPoints"`
	VoteType     int                `bson:"voteType" json:"voteType"`
	Statement    string             `bson:"statement,omitempty" json:"statement,omitempty"`
	SignatureRef string             `bson:"signatureRef,omitempty" json:"signatureRef,omitempty"`
	ChainTxRef   string             `bson:"chainTxRef,omitempty" json:"chainTxRef,omitempty"`
	// CountedAs is written back by the tally engine.
	CountedAs string `bson:"countedAs,omitempty" json:"countedAs,omitempty"`
}

// ValidSplit reports whether the points are non-negative and sum to 100.
func (v *Vote) ValidSplit() bool {
	return v.ACampPoints >= 0 && v.BCampPoints >= 0 && v.ACampPoints+v.BCampPoints == 100
}

// VoteFilter selects votes for the per-match listing endpoint.
type VoteFilter struct {
	Search string
	Count  int
	Page   int
}
