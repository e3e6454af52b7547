package services

import (
	"context"

	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store interfaces consumed by the lifecycle and tally services. The
// Mongo implementations live in the stores package; tests substitute
// in-memory fakes.

type MatchStore interface {
	Create(ctx context.Context, m *models.Match) error
	Get(ctx context.Context, matchID string) (*models.Match, error)
	UpdateIf(ctx context.Context, matchID string, expected models.MatchStatus, upd models.MatchUpdate) (*models.Match, error)
	List(ctx context.Context, f models.MatchFilter) ([]models.Match, int64, error)
	AwaitingReplyFrom(ctx context.Context, username string) ([]models.Match, error)
	PendingVerification(ctx context.Context) ([]models.Match, error)
	DueForFinalization(ctx context.Context, now int64, fn func(*models.Match) error) error
	UnsettledTallies(ctx context.Context, fn func(*models.Match) error) error
	ByParticipant(ctx context.Context, username string) ([]models.Match, error)
}

type VoteStore interface {
	Append(ctx context.Context, v *models.Vote, snapshot models.MatchStatus) error
	ForMatch(ctx context.Context, matchID string, fn func(*models.Vote) error) error
	ListForMatch(ctx context.Context, matchID string, f models.VoteFilter) ([]models.Vote, int64, error)
	CountForVoter(ctx context.Context, voterID primitive.ObjectID, voteType int, since int64) (int64, error)
	ByVoter(ctx context.Context, voterID primitive.ObjectID) ([]models.Vote, error)
	SetCountedAs(ctx context.Context, matchID string, voterID primitive.ObjectID, voteType int, class string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	SearchBattlers(ctx context.Context, search string, count, page int) ([]models.User, int64, error)
	ApplyCounters(ctx context.Context, userID primitive.ObjectID, matchID string, delta models.CounterDelta) (bool, error)
	OverwriteAggregates(ctx context.Context, userID primitive.ObjectID, totals models.CounterDelta, tallied []string) error
}

// Notifier delivers lifecycle notifications to external collaborators.
// Implementations must be best effort; the engine never blocks on them.
type Notifier interface {
	CalloutSubmitted(m *models.Match)
	ReplySubmitted(m *models.Match)
	MatchFinalized(m *models.Match)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) CalloutSubmitted(*models.Match) {}
func (NopNotifier) ReplySubmitted(*models.Match)   {}
func (NopNotifier) MatchFinalized(*models.Match)   {}
