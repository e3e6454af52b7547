package stores

import (
	"context"
	"fmt"

	"dancebattlez/apperrors"
	"dancebattlez/db"
	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserStore reads user records and applies tally counter commits.
type UserStore struct{}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) collection() *mongo.Collection {
	return db.GetCollection(db.UsersCollection)
}

func (s *UserStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.NotFound, "User doesn't exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id.Hex(), err)
	}
	return &user, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.collection().FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.NotFound, "User doesn't exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", username, err)
	}
	return &user, nil
}

// SearchBattlers pages through registered battlers, optionally filtered by
// a username substring. Used by the callout opponent picker.
func (s *UserStore) SearchBattlers(ctx context.Context, search string, count, page int) ([]models.User, int64, error) {
	filter := bson.M{"accountStatus": models.AccountRegistered, "battler": 1}
	if search != "" {
		filter["username"] = bson.M{"$regex": fmt.Sprintf(".*%s.*", search), "$options": "i"}
	}

	total, err := s.collection().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count battlers: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetSkip(int64(count * (page - 1))).
		SetLimit(int64(count))
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list battlers: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("failed to decode battlers: %w", err)
	}
	return users, total, nil
}

// ApplyCounters commits a counter delta for one match at most once per
// user. The filter excludes users whose ledger already holds the match id,
// and the ledger entry is added in the same update, so a replayed
// finalization is a no-op. Returns whether the delta was applied.
func (s *UserStore) ApplyCounters(ctx context.Context, userID primitive.ObjectID, matchID string, delta models.CounterDelta) (bool, error) {
	if delta.IsZero() {
		return false, nil
	}

	inc := bson.M{}
	if delta.MatchesWon != 0 {
		inc["matchesWon"] = delta.MatchesWon
	}
	if delta.MatchesLost != 0 {
		inc["matchesLost"] = delta.MatchesLost
	}
	if delta.MatchesWithdrawn != 0 {
		inc["matchesWithdrawn"] = delta.MatchesWithdrawn
	}
	if delta.CalloutsIssued != 0 {
		inc["calloutsIssued"] = delta.CalloutsIssued
	}
	if delta.ResponsesIssued != 0 {
		inc["responsesIssued"] = delta.ResponsesIssued
	}
	if delta.VotesCastFor != 0 {
		inc["votesCastFor"] = delta.VotesCastFor
	}
	if delta.VotesCastAgainst != 0 {
		inc["votesCastAgainst"] = delta.VotesCastAgainst
	}
	if delta.JudgeVotes != 0 {
		inc["judgeVotes"] = delta.JudgeVotes
	}
	if delta.FinalVotes != 0 {
		inc["finalVotes"] = delta.FinalVotes
	}

	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": userID, "talliedMatches": bson.M{"$ne": matchID}},
		bson.M{
			"$inc":      inc,
			"$addToSet": bson.M{"talliedMatches": matchID},
		})
	if err != nil {
		return false, fmt.Errorf("failed to apply counters for %s: %w", userID.Hex(), err)
	}
	return res.ModifiedCount == 1, nil
}

// OverwriteAggregates replaces a user's counters and ledger wholesale.
// Used by the reconciliation rebuild, which recomputes them from the
// match and vote collections.
func (s *UserStore) OverwriteAggregates(ctx context.Context, userID primitive.ObjectID, totals models.CounterDelta, tallied []string) error {
	if tallied == nil {
		tallied = []string{}
	}
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			"matchesWon":       totals.MatchesWon,
			"matchesLost":      totals.MatchesLost,
			"matchesWithdrawn": totals.MatchesWithdrawn,
			"calloutsIssued":   totals.CalloutsIssued,
			"responsesIssued":  totals.ResponsesIssued,
			"votesCastFor":     totals.VotesCastFor,
			"votesCastAgainst": totals.VotesCastAgainst,
			"judgeVotes":       totals.JudgeVotes,
			"finalVotes":       totals.FinalVotes,
			"talliedMatches":   tallied,
		}})
	if err != nil {
		return fmt.Errorf("failed to overwrite aggregates for %s: %w", userID.Hex(), err)
	}
	return nil
}

// SetRoles updates the role bits on a user. Bits left nil are unchanged.
func (s *UserStore) SetRoles(ctx context.Context, username string, battler, voter, judge, admin *int) error {
	set := bson.M{}
	if battler != nil {
		set["battler"] = *battler
	}
	if voter != nil {
		set["voter"] = *voter
	}
	if judge != nil {
		set["judge"] = *judge
	}
	if admin != nil {
		set["admin"] = *admin
	}
	if len(set) == 0 {
		return nil
	}
	res, err := s.collection().UpdateOne(ctx, bson.M{"username": username}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to set roles for %s: %w", username, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.New(apperrors.NotFound, "User doesn't exist")
	}
	return nil
}
