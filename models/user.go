package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account status values. Only registered users may initiate callouts.
const (
	AccountRegistered = "registered"
	AccountPending    = "pending"
	AccountSuspended  = "suspended"
)

// SocialLink records a linked external account. At least one link is
// required for a vote to count as official.
type SocialLink struct {
	Provider string `bson:"provider" json:"provider"`
	Handle   string `bson:"handle" json:"handle"`
	LinkedAt int64  `bson:"linkedAt" json:"linkedAt"`
}

// User defines a community member. Role flags are stored as ints where 1
// grants the role, leaving room for levels later.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Username      string             `bson:"username" json:"username"`
	DisplayName   string             `bson:"displayName" json:"displayName"`
	PasswordHash  string             `bson:"passwordHash" json:"-"`
	AccountStatus string             `bson:"accountStatus" json:"accountStatus"`
	CreatedAt     int64              `bson:"createdAt" json:"createdAt"`

	Battler int `bson:"battler" json:"battler"`
	Voter   int `bson:"voter" json:"voter"`
	Judge   int `bson:"judge" json:"judge"`
	Admin   int `bson:"admin" json:"admin"`

	SocialLinks []SocialLink `bson:"socialLinks" json:"socialLinks"`

	// Aggregate counters. Written only by the tally engine; derived from
	// the match and vote collections and rebuildable from them.
	MatchesWon       int `bson:"matchesWon" json:"matchesWon"`
	MatchesLost      int `bson:"matchesLost" json:"matchesLost"`
	MatchesWithdrawn int `bson:"matchesWithdrawn" json:"matchesWithdrawn"`
	CalloutsIssued   int `bson:"calloutsIssued" json:"calloutsIssued"`
	ResponsesIssued  int `bson:"responsesIssued" json:"responsesIssued"`
	VotesCastFor     int `bson:"votesCastFor" json:"votesCastFor"`
	VotesCastAgainst int `bson:"votesCastAgainst" json:"votesCastAgainst"`
	JudgeVotes       int `bson:"judgeVotes" json:"judgeVotes"`
	FinalVotes       int `bson:"finalVotes" json:"finalVotes"`

	// TalliedMatches guards counter commits: a match id lands here in the
	// same update that increments the counters, so replaying a
	// finalization never double-counts.
	TalliedMatches []string `bson:"talliedMatches" json:"-"`
}

// IsBattler reports whether the user holds the battler role.
func (u *User) IsBattler() bool { return u.Battler == 1 }

func (u *User) IsVoter() bool { return u.Voter == 1 }

func (u *User) IsJudge() bool { return u.Judge == 1 }

func (u *User) IsAdmin() bool { return u.Admin == 1 }

// HasSocialLink reports whether any external account is linked.
func (u *User) HasSocialLink() bool { return len(u.SocialLinks) > 0 }

// CounterDelta is one user's counter change for one match. Applied
// at most once per (user, match) through the TalliedMatches ledger.
type CounterDelta struct {
	MatchesWon       int
	MatchesLost      int
	MatchesWithdrawn int
	CalloutsIssued   int
	ResponsesIssued  int
	VotesCastFor     int
	VotesCastAgainst int
	JudgeVotes       int
	FinalVotes       int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d == CounterDelta{}
}

// UserCard is the public projection used by listing endpoints.
type UserCard struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	DisplayName      string `json:"displayName"`
	MatchesWon       int    `json:"matchesWon"`
	MatchesLost      int    `json:"matchesLost"`
	MatchesWithdrawn int    `json:"matchesWithdrawn"`
	Callouts         int    `json:"callouts"`
	Responses        int    `json:"responses"`
}

// Card projects the public fields.
func (u *User) Card() UserCard {
	return UserCard{
		ID:               u.ID.Hex(),
		Username:         u.Username,
		DisplayName:      u.DisplayName,
		MatchesWon:       u.MatchesWon,
		MatchesLost:      u.MatchesLost,
		MatchesWithdrawn: u.MatchesWithdrawn,
		Callouts:         u.CalloutsIssued,
		Responses:        u.ResponsesIssued,
	}
}
