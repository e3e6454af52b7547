package stores

import (
	"context"
	"fmt"

	"dancebattlez/apperrors"
	"dancebattlez/db"
	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MatchStore is the repository of match documents. All status changes go
// through UpdateIf, a compare-and-set on the status field; that is the
// only concurrency control the lifecycle relies on.
type MatchStore struct{}

func NewMatchStore() *MatchStore {
	return &MatchStore{}
}

func (s *MatchStore) collection() *mongo.Collection {
	return db.GetCollection(db.MatchesCollection)
}

// Create inserts a new match. The partial unique index on pairKey rejects
// a second open match for the same unordered pair.
func (s *MatchStore) Create(ctx context.Context, m *models.Match) error {
	_, err := s.collection().InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.New(apperrors.DuplicateOpenPair, "An open battle between these users already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (s *MatchStore) Get(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	err := s.collection().FindOne(ctx, bson.M{"matchId": matchID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.NotFound, "Battle doesn't exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match %s: %w", matchID, err)
	}
	return &m, nil
}

// UpdateIf applies the mutation only while the stored status equals the
// expected one, and returns the updated document. A concurrent transition
// surfaces as StaleStatus so the caller can refetch and decide.
func (s *MatchStore) UpdateIf(ctx context.Context, matchID string, expected models.MatchStatus, upd models.MatchUpdate) (*models.Match, error) {
	set := updateDocument(upd)
	if len(set) == 0 {
		return s.Get(ctx, matchID)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Match
	err := s.collection().FindOneAndUpdate(ctx,
		bson.M{"matchId": matchID, "status": expected},
		bson.M{"$set": set},
		opts,
	).Decode(&m)
	if err == mongo.ErrNoDocuments {
		// Distinguish a lost race from an unknown id.
		if _, getErr := s.Get(ctx, matchID); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.New(apperrors.StaleStatus, "Battle changed state, refetch and retry")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update match %s: %w", matchID, err)
	}
	return &m, nil
}

// updateDocument flattens a MatchUpdate into a $set document. Kept as a
// free function so the listing tests can exercise it directly.
func updateDocument(upd models.MatchUpdate) bson.M {
	set := bson.M{}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Open != nil {
		set["open"] = *upd.Open
	}
	if upd.AVerified != nil {
		set["aVerified"] = *upd.AVerified
	}
	if upd.BVerified != nil {
		set["bVerified"] = *upd.BVerified
	}
	if upd.ResponseVideoRef != nil {
		set["responseVideoRef"] = *upd.ResponseVideoRef
	}
	if upd.ResponseImageRef != nil {
		set["responseImageRef"] = *upd.ResponseImageRef
	}
	if upd.ResponderReply != nil {
		set["responderReply"] = *upd.ResponderReply
	}
	if upd.ResponseAt != nil {
		set["responseAt"] = *upd.ResponseAt
	}
	if upd.VotingOpensAt != nil {
		set["votingOpensAt"] = *upd.VotingOpensAt
	}
	if upd.VotingClosesAt != nil {
		set["votingClosesAt"] = *upd.VotingClosesAt
	}
	if upd.FinalizedAt != nil {
		set["finalizedAt"] = *upd.FinalizedAt
	}
	if upd.Outcome != nil {
		set["outcome"] = *upd.Outcome
	}
	if upd.ATotal != nil {
		set["aTotal"] = *upd.ATotal
	}
	if upd.BTotal != nil {
		set["bTotal"] = *upd.BTotal
	}
	if upd.TallyPending != nil {
		set["tallyPending"] = *upd.TallyPending
	}
	if upd.Reconcile != nil {
		set["reconcile"] = *upd.Reconcile
	}
	return set
}

// ListFilterDocument builds the listing query. Verified callouts only;
// the three flags opt withdrawn, unanswered and finalized battles back in.
func ListFilterDocument(f models.MatchFilter) bson.M {
	conditions := bson.M{"aVerified": true}
	if f.Search != "" {
		regex := bson.M{"$regex": fmt.Sprintf(".*%s.*", f.Search), "$options": "i"}
		conditions["$or"] = bson.A{
			bson.M{"aUsername": regex},
			bson.M{"bUsername": regex},
		}
	}
	if !f.ShowTakeBacks {
		conditions["status"] = bson.M{"$ne": models.StatusWithdrawn}
	}
	if !f.ShowIncomplete {
		conditions["responseAt"] = bson.M{"$gt": 0}
	}
	if !f.ShowClosed {
		mergeStatusCondition(conditions, bson.M{"$ne": models.StatusFinalized})
	}
	return conditions
}

// mergeStatusCondition folds a second status constraint into the filter
// without clobbering an earlier one.
func mergeStatusCondition(conditions bson.M, cond bson.M) {
	existing, ok := conditions["status"]
	if !ok {
		conditions["status"] = cond
		return
	}
	delete(conditions, "status")
	and := bson.A{
		bson.M{"status": existing},
		bson.M{"status": cond},
	}
	if prior, ok := conditions["$and"]; ok {
		and = append(prior.(bson.A), and...)
	}
	conditions["$and"] = and
}

// List returns a page of matches in deterministic order: newest first,
// ties broken by match id.
func (s *MatchStore) List(ctx context.Context, f models.MatchFilter) ([]models.Match, int64, error) {
	filter := ListFilterDocument(f)

	total, err := s.collection().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count matches: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "matchId", Value: 1}}).
		SetSkip(int64(f.Count * (f.Page - 1))).
		SetLimit(int64(f.Count))
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list matches: %w", err)
	}
	defer cursor.Close(ctx)

	var matches []models.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, 0, fmt.Errorf("failed to decode matches: %w", err)
	}
	return matches, total, nil
}

// AwaitingReplyFrom returns verified callouts still waiting on the given
// respondent.
func (s *MatchStore) AwaitingReplyFrom(ctx context.Context, username string) ([]models.Match, error) {
	cursor, err := s.collection().Find(ctx, bson.M{
		"status":    models.StatusAwaitingReply,
		"bUsername": username,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending responses: %w", err)
	}
	defer cursor.Close(ctx)

	var matches []models.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode pending responses: %w", err)
	}
	return matches, nil
}

// PendingVerification returns battles an admin still has to act on:
// unverified callouts and unverified replies.
func (s *MatchStore) PendingVerification(ctx context.Context) ([]models.Match, error) {
	cursor, err := s.collection().Find(ctx, bson.M{
		"status": bson.M{"$in": bson.A{models.StatusDraft, models.StatusReplyDraft}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending verifications: %w", err)
	}
	defer cursor.Close(ctx)

	var matches []models.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode pending verifications: %w", err)
	}
	return matches, nil
}

// DueForFinalization streams matches whose voting window has elapsed.
func (s *MatchStore) DueForFinalization(ctx context.Context, now int64, fn func(*models.Match) error) error {
	cursor, err := s.collection().Find(ctx, bson.M{
		"status":         models.StatusVotingOpen,
		"votingClosesAt": bson.M{"$lte": now},
	})
	if err != nil {
		return fmt.Errorf("failed to scan due matches: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var m models.Match
		if err := cursor.Decode(&m); err != nil {
			return fmt.Errorf("failed to decode due match: %w", err)
		}
		if err := fn(&m); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// UnsettledTallies streams terminal matches with an unapplied counter
// commit or a requested reconciliation, so the sweeper can replay them.
func (s *MatchStore) UnsettledTallies(ctx context.Context, fn func(*models.Match) error) error {
	cursor, err := s.collection().Find(ctx, bson.M{
		"status": bson.M{"$in": bson.A{models.StatusFinalized, models.StatusWithdrawn}},
		"$or": bson.A{
			bson.M{"tallyPending": true},
			bson.M{"reconcile": true},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to scan unsettled tallies: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var m models.Match
		if err := cursor.Decode(&m); err != nil {
			return fmt.Errorf("failed to decode unsettled match: %w", err)
		}
		if err := fn(&m); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// ByParticipant returns every match the user fought in, for the
// aggregate rebuild.
func (s *MatchStore) ByParticipant(ctx context.Context, username string) ([]models.Match, error) {
	cursor, err := s.collection().Find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"aUsername": username},
			bson.M{"bUsername": username},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for %s: %w", username, err)
	}
	defer cursor.Close(ctx)

	var matches []models.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode matches for %s: %w", username, err)
	}
	return matches, nil
}
