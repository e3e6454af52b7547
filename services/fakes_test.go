package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"dancebattlez/apperrors"
	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory stores mirroring the Mongo implementations' semantics,
// including the one-open-match-per-pair index, the compare-and-set
// update and the tallied-matches ledger.

type fakeMatchStore struct {
	mu      sync.Mutex
	matches map[string]*models.Match
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{matches: map[string]*models.Match{}}
}

func (s *fakeMatchStore) Create(ctx context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Open {
		for _, existing := range s.matches {
			if existing.Open && existing.PairKey == m.PairKey {
				return apperrors.New(apperrors.DuplicateOpenPair, "An open battle between these camps already exists")
			}
		}
	}
	cp := *m
	s.matches[m.MatchID] = &cp
	return nil
}

func (s *fakeMatchStore) Get(ctx context.Context, matchID string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, "Battle not found")
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMatchStore) UpdateIf(ctx context.Context, matchID string, expected models.MatchStatus, upd models.MatchUpdate) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, "Battle not found")
	}
	if m.Status != expected {
		return nil, apperrors.Newf(apperrors.StaleStatus, "Battle is %s", m.Status)
	}
	upd.Apply(m)
	cp := *m
	return &cp, nil
}

func (s *fakeMatchStore) all() []models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out
}

func (s *fakeMatchStore) List(ctx context.Context, f models.MatchFilter) ([]models.Match, int64, error) {
	var selected []models.Match
	for _, m := range s.all() {
		if !m.AVerified {
			continue
		}
		if !f.ShowTakeBacks && m.Status == models.StatusWithdrawn {
			continue
		}
		if !f.ShowIncomplete && m.ResponseAt == 0 {
			continue
		}
		if !f.ShowClosed && m.Status == models.StatusFinalized {
			continue
		}
		if f.Search != "" &&
			!strings.Contains(strings.ToLower(m.AUsername), strings.ToLower(f.Search)) &&
			!strings.Contains(strings.ToLower(m.BUsername), strings.ToLower(f.Search)) {
			continue
		}
		selected = append(selected, m)
	}
	total := int64(len(selected))
	start := (f.Page - 1) * f.Count
	if start > len(selected) {
		start = len(selected)
	}
	end := start + f.Count
	if end > len(selected) {
		end = len(selected)
	}
	return selected[start:end], total, nil
}

func (s *fakeMatchStore) AwaitingReplyFrom(ctx context.Context, username string) ([]models.Match, error) {
	var out []models.Match
	for _, m := range s.all() {
		if m.Status == models.StatusAwaitingReply && m.BUsername == username {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMatchStore) PendingVerification(ctx context.Context) ([]models.Match, error) {
	var out []models.Match
	for _, m := range s.all() {
		if m.Status == models.StatusDraft || m.Status == models.StatusReplyDraft {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMatchStore) DueForFinalization(ctx context.Context, now int64, fn func(*models.Match) error) error {
	for _, m := range s.all() {
		if m.Status == models.StatusVotingOpen && m.VotingClosesAt <= now {
			cp := m
			if err := fn(&cp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *fakeMatchStore) UnsettledTallies(ctx context.Context, fn func(*models.Match) error) error {
	for _, m := range s.all() {
		if !m.Status.Terminal() {
			continue
		}
		if m.TallyPending || m.Reconcile {
			cp := m
			if err := fn(&cp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *fakeMatchStore) ByParticipant(ctx context.Context, username string) ([]models.Match, error) {
	var out []models.Match
	for _, m := range s.all() {
		if m.AUsername == username || m.BUsername == username {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeVoteStore struct {
	mu    sync.Mutex
	votes []models.Vote
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{}
}

func (s *fakeVoteStore) Append(ctx context.Context, v *models.Vote, snapshot models.MatchStatus) error {
	if !v.ValidSplit() {
		return apperrors.New(apperrors.BadSplit, "Camp points must be non-negative and sum to 100")
	}
	switch snapshot {
	case models.StatusVotingOpen:
	case models.StatusFinalized:
		if v.VoteType != models.VoteUnofficial {
			return apperrors.New(apperrors.Conflict, "Voting ended, only unofficial voting is available")
		}
	default:
		return apperrors.New(apperrors.Conflict, "Battle is not open for voting")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.votes {
		if existing.MatchID == v.MatchID && existing.VoterID == v.VoterID && existing.VoteType == v.VoteType {
			return apperrors.New(apperrors.DuplicateVote, "You already voted on this battle")
		}
	}
	s.votes = append(s.votes, *v)
	return nil
}

func (s *fakeVoteStore) forMatch(matchID string) []models.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.MatchID == matchID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func (s *fakeVoteStore) ForMatch(ctx context.Context, matchID string, fn func(*models.Vote) error) error {
	for _, v := range s.forMatch(matchID) {
		cp := v
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeVoteStore) ListForMatch(ctx context.Context, matchID string, f models.VoteFilter) ([]models.Vote, int64, error) {
	var selected []models.Vote
	for _, v := range s.forMatch(matchID) {
		if f.Search != "" && !strings.Contains(strings.ToLower(v.VoterName), strings.ToLower(f.Search)) {
			continue
		}
		selected = append(selected, v)
	}
	total := int64(len(selected))
	start := (f.Page - 1) * f.Count
	if start > len(selected) {
		start = len(selected)
	}
	end := start + f.Count
	if end > len(selected) {
		end = len(selected)
	}
	return selected[start:end], total, nil
}

func (s *fakeVoteStore) CountForVoter(ctx context.Context, voterID primitive.ObjectID, voteType int, since int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, v := range s.votes {
		if v.VoterID == voterID && v.VoteType == voteType && v.Timestamp >= since {
			n++
		}
	}
	return n, nil
}

func (s *fakeVoteStore) ByVoter(ctx context.Context, voterID primitive.ObjectID) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.VoterID == voterID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeVoteStore) SetCountedAs(ctx context.Context, matchID string, voterID primitive.ObjectID, voteType int, class string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.votes {
		v := &s.votes[i]
		if v.MatchID == matchID && v.VoterID == voterID && v.VoteType == voteType {
			v.CountedAs = class
			return nil
		}
	}
	return apperrors.New(apperrors.NotFound, "Vote not found")
}

// recordingNotifier counts deliveries per match.
type recordingNotifier struct {
	mu        sync.Mutex
	callouts  map[string]int
	replies   map[string]int
	finalized map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		callouts:  map[string]int{},
		replies:   map[string]int{},
		finalized: map[string]int{},
	}
}

func (n *recordingNotifier) CalloutSubmitted(m *models.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callouts[m.MatchID]++
}

func (n *recordingNotifier) ReplySubmitted(m *models.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies[m.MatchID]++
}

func (n *recordingNotifier) MatchFinalized(m *models.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized[m.MatchID]++
}

func (n *recordingNotifier) finalizedCount(matchID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalized[matchID]
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[primitive.ObjectID]*models.User{}}
}

func (s *fakeUserStore) put(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *fakeUserStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, "User not found")
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.New(apperrors.NotFound, "User not found")
}

func (s *fakeUserStore) SearchBattlers(ctx context.Context, search string, count, page int) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var selected []models.User
	for _, u := range s.users {
		if u.AccountStatus != models.AccountRegistered || !u.IsBattler() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(search)) {
			continue
		}
		selected = append(selected, *u)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Username < selected[j].Username })
	total := int64(len(selected))
	start := (page - 1) * count
	if start > len(selected) {
		start = len(selected)
	}
	end := start + count
	if end > len(selected) {
		end = len(selected)
	}
	return selected[start:end], total, nil
}

func (s *fakeUserStore) ApplyCounters(ctx context.Context, userID primitive.ObjectID, matchID string, delta models.CounterDelta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, apperrors.New(apperrors.NotFound, "User not found")
	}
	for _, tallied := range u.TalliedMatches {
		if tallied == matchID {
			return false, nil
		}
	}
	u.MatchesWon += delta.MatchesWon
	u.MatchesLost += delta.MatchesLost
	u.MatchesWithdrawn += delta.MatchesWithdrawn
	u.CalloutsIssued += delta.CalloutsIssued
	u.ResponsesIssued += delta.ResponsesIssued
	u.VotesCastFor += delta.VotesCastFor
	u.VotesCastAgainst += delta.VotesCastAgainst
	u.JudgeVotes += delta.JudgeVotes
	u.FinalVotes += delta.FinalVotes
	u.TalliedMatches = append(u.TalliedMatches, matchID)
	return true, nil
}

func (s *fakeUserStore) OverwriteAggregates(ctx context.Context, userID primitive.ObjectID, totals models.CounterDelta, tallied []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperrors.New(apperrors.NotFound, "User not found")
	}
	u.MatchesWon = totals.MatchesWon
	u.MatchesLost = totals.MatchesLost
	u.MatchesWithdrawn = totals.MatchesWithdrawn
	u.CalloutsIssued = totals.CalloutsIssued
	u.ResponsesIssued = totals.ResponsesIssued
	u.VotesCastFor = totals.VotesCastFor
	u.VotesCastAgainst = totals.VotesCastAgainst
	u.JudgeVotes = totals.JudgeVotes
	u.FinalVotes = totals.FinalVotes
	u.TalliedMatches = append([]string(nil), tallied...)
	return nil
}
