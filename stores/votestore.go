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

// VoteStore is the append-only ballot repository. Uniqueness on
// (match, voter, type) comes from the compound index; a duplicate insert
// fails without partial state.
type VoteStore struct{}

func NewVoteStore() *VoteStore {
	return &VoteStore{}
}

func (s *VoteStore) collection() *mongo.Collection {
	return db.GetCollection(db.VotesCollection)
}

// Append persists a vote. The snapshot is the match status the caller
// admitted the vote under: official and judge votes require an open
// window, unofficial votes are also accepted after finalization.
func (s *VoteStore) Append(ctx context.Context, v *models.Vote, snapshot models.MatchStatus) error {
	if !v.ValidSplit() {
		return apperrors.New(apperrors.BadSplit, "Camp points must be non-negative and sum to 100")
	}
	switch snapshot {
	case models.StatusVotingOpen:
		// all types admissible
	case models.StatusFinalized:
		if v.VoteType != models.VoteUnofficial {
			return apperrors.New(apperrors.Conflict, "Voting ended, only unofficial voting is available")
		}
	default:
		return apperrors.New(apperrors.Conflict, "Battle is not open for voting")
	}

	_, err := s.collection().InsertOne(ctx, v)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.New(apperrors.DuplicateVote, "You've already voted on this battle")
	}
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// ForMatch streams the match's votes in timestamp order.
func (s *VoteStore) ForMatch(ctx context.Context, matchID string, fn func(*models.Vote) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.collection().Find(ctx, bson.M{"matchId": matchID}, opts)
	if err != nil {
		return fmt.Errorf("failed to scan votes for %s: %w", matchID, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var v models.Vote
		if err := cursor.Decode(&v); err != nil {
			return fmt.Errorf("failed to decode vote: %w", err)
		}
		if err := fn(&v); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// ListForMatch returns a page of votes for the public vote list.
func (s *VoteStore) ListForMatch(ctx context.Context, matchID string, f models.VoteFilter) ([]models.Vote, int64, error) {
	filter := bson.M{"matchId": matchID}
	if f.Search != "" {
		filter["voterName"] = bson.M{"$regex": fmt.Sprintf(".*%s.*", f.Search), "$options": "i"}
	}

	total, err := s.collection().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count votes: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetSkip(int64(f.Count * (f.Page - 1))).
		SetLimit(int64(f.Count))
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list votes: %w", err)
	}
	defer cursor.Close(ctx)

	var votes []models.Vote
	if err := cursor.All(ctx, &votes); err != nil {
		return nil, 0, fmt.Errorf("failed to decode votes: %w", err)
	}
	return votes, total, nil
}

// CountForVoter counts a voter's ballots of one type since a timestamp.
// Backs the optional per-voter cap.
func (s *VoteStore) CountForVoter(ctx context.Context, voterID primitive.ObjectID, voteType int, since int64) (int64, error) {
	count, err := s.collection().CountDocuments(ctx, bson.M{
		"voterId":   voterID,
		"voteType":  voteType,
		"timestamp": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count voter ballots: %w", err)
	}
	return count, nil
}

// ByVoter returns every vote a user has cast, for the aggregate rebuild.
func (s *VoteStore) ByVoter(ctx context.Context, voterID primitive.ObjectID) ([]models.Vote, error) {
	cursor, err := s.collection().Find(ctx, bson.M{"voterId": voterID})
	if err != nil {
		return nil, fmt.Errorf("failed to list votes for voter: %w", err)
	}
	defer cursor.Close(ctx)

	var votes []models.Vote
	if err := cursor.All(ctx, &votes); err != nil {
		return nil, fmt.Errorf("failed to decode voter votes: %w", err)
	}
	return votes, nil
}

// SetCountedAs records the tally class assigned to a vote.
func (s *VoteStore) SetCountedAs(ctx context.Context, matchID string, voterID primitive.ObjectID, voteType int, class string) error {
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"matchId": matchID, "voterId": voterID, "voteType": voteType},
		bson.M{"$set": bson.M{"countedAs": class}})
	if err != nil {
		return fmt.Errorf("failed to record tally class: %w", err)
	}
	return nil
}
