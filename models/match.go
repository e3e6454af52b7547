package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatchStatus is the lifecycle phase of a battle.
type MatchStatus string

const (
	// StatusDraft: callout submitted, awaiting admin verification.
	StatusDraft MatchStatus = "DRAFT"
	// StatusAwaitingReply: callout verified, waiting for the respondent.
	StatusAwaitingReply MatchStatus = "AWAITING_REPLY"
	// StatusReplyDraft: response submitted, awaiting admin verification.
	StatusReplyDraft MatchStatus = "REPLY_DRAFT"
	// StatusVotingOpen: both sides verified, voting window running.
	StatusVotingOpen MatchStatus = "VOTING_OPEN"
	// StatusFinalized: window closed and tallied. Terminal.
	StatusFinalized MatchStatus = "FINALIZED"
	// StatusWithdrawn: challenger took the callout back. Terminal.
	StatusWithdrawn MatchStatus = "WITHDRAWN"
)

// Terminal reports whether no further status transition is possible.
func (s MatchStatus) Terminal() bool {
	return s == StatusFinalized || s == StatusWithdrawn
}

// Outcome of a finalized match.
type Outcome string

const (
	OutcomeAWins     Outcome = "A_wins"
	OutcomeBWins     Outcome = "B_wins"
	OutcomeTie       Outcome = "tie"
	OutcomeWithdrawn Outcome = "withdrawn"
)

// Match is a battle document. The challenger is the A camp, the
// respondent the B camp. Timestamps are epoch seconds UTC.
type Match struct {
	MatchID string `bson:"matchId" json:"matchId"`
	// PairKey is the canonical unordered participant key; together with
	// Open it backs the one-open-match-per-pair unique index.
	PairKey string `bson:"pairKey" json:"-"`
	Open    bool   `bson:"open" json:"-"`

	AUserID   primitive.ObjectID `bson:"aUserId" json:"aUserId"`
	BUserID   primitive.ObjectID `bson:"bUserId" json:"bUserId"`
	AUsername string             `bson:"aUsername" json:"aUsername"`
	BUsername string             `bson:"bUsername" json:"bUsername"`

	Judges []primitive.ObjectID `bson:"judges" json:"judges"`

	CalloutVideoRef  string `bson:"calloutVideoRef" json:"calloutVideoRef"`
	CalloutImageRef  string `bson:"calloutImageRef" json:"calloutImageRef"`
	ResponseVideoRef string `bson:"responseVideoRef,omitempty" json:"responseVideoRef,omitempty"`
	ResponseImageRef string `bson:"responseImageRef,omitempty" json:"responseImageRef,omitempty"`
	ResponderReply   string `bson:"responderReply,omitempty" json:"responderReply,omitempty"`
	Rules            string `bson:"rules" json:"rules"`

	VotingDurationHours int         `bson:"votingDurationHours" json:"votingDurationHours"`
	Status              MatchStatus `bson:"status" json:"status"`
	AVerified           bool        `bson:"aVerified" json:"aVerified"`
	BVerified           bool        `bson:"bVerified" json:"bVerified"`

	CreatedAt      int64 `bson:"createdAt" json:"createdAt"`
	ResponseAt     int64 `bson:"responseAt,omitempty" json:"responseAt,omitempty"`
	VotingOpensAt  int64 `bson:"votingOpensAt,omitempty" json:"votingOpensAt,omitempty"`
	VotingClosesAt int64 `bson:"votingClosesAt,omitempty" json:"votingClosesAt,omitempty"`
	FinalizedAt    int64 `bson:"finalizedAt,omitempty" json:"finalizedAt,omitempty"`

	Outcome Outcome `bson:"outcome,omitempty" json:"outcome,omitempty"`
	ATotal  int     `bson:"aTotal" json:"aTotal"`
	BTotal  int     `bson:"bTotal" json:"bTotal"`

	// TallyPending is the outbox flag: set in the same update that flips
	// the status to FINALIZED, cleared once counters are applied.
	TallyPending bool `bson:"tallyPending" json:"-"`
	// Reconcile requests a recomputation of totals on an already
	// finalized match.
	Reconcile bool `bson:"reconcile" json:"-"`
}

// HasJudge reports whether the user is on the nominated judge list.
func (m *Match) HasJudge(id primitive.ObjectID) bool {
	for _, j := range m.Judges {
		if j == id {
			return true
		}
	}
	return false
}

// IsParticipant reports whether the user is one of the two camps.
func (m *Match) IsParticipant(id primitive.ObjectID) bool {
	return m.AUserID == id || m.BUserID == id
}

// MatchUpdate is the mutation half of a compare-and-set: only non-nil
// fields are written, and only when the stored status still matches the
// expected one.
type MatchUpdate struct {
	Status           *MatchStatus
	Open             *bool
	AVerified        *bool
	BVerified        *bool
	ResponseVideoRef *string
	ResponseImageRef *string
	ResponderReply   *string
	ResponseAt       *int64
	VotingOpensAt    *int64
	VotingClosesAt   *int64
	FinalizedAt      *int64
	Outcome          *Outcome
	ATotal           *int
	BTotal           *int
	TallyPending     *bool
	Reconcile        *bool
}

// Apply writes the non-nil fields onto the match. Shared by the Mongo
// store (to build the $set document indirectly via reflection-free code)
// and by in-memory fakes in tests.
func (u MatchUpdate) Apply(m *Match) {
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.Open != nil {
		m.Open = *u.Open
	}
	if u.AVerified != nil {
		m.AVerified = *u.AVerified
	}
	if u.BVerified != nil {
		m.BVerified = *u.BVerified
	}
	if u.ResponseVideoRef != nil {
		m.ResponseVideoRef = *u.ResponseVideoRef
	}
	if u.ResponseImageRef != nil {
		m.ResponseImageRef = *u.ResponseImageRef
	}
	if u.ResponderReply != nil {
		m.ResponderReply = *u.ResponderReply
	}
	if u.ResponseAt != nil {
		m.ResponseAt = *u.ResponseAt
	}
	if u.VotingOpensAt != nil {
		m.VotingOpensAt = *u.VotingOpensAt
	}
	if u.VotingClosesAt != nil {
		m.VotingClosesAt = *u.VotingClosesAt
	}
	if u.FinalizedAt != nil {
		m.FinalizedAt = *u.FinalizedAt
	}
	if u.Outcome != nil {
		m.Outcome = *u.Outcome
	}
	if u.ATotal != nil {
		m.ATotal = *u.ATotal
	}
	if u.BTotal != nil {
		m.BTotal = *u.BTotal
	}
	if u.TallyPending != nil {
		m.TallyPending = *u.TallyPending
	}
	if u.Reconcile != nil {
		m.Reconcile = *u.Reconcile
	}
}

// MatchFilter selects matches for the listing endpoint. Flags follow the
// public API: take-backs are withdrawn matches, incomplete ones have no
// verified response yet, closed ones are finalized.
type MatchFilter struct {
	Search         string
	ShowTakeBacks  bool
	ShowIncomplete bool
	ShowClosed     bool
	Count          int
	Page           int
}
