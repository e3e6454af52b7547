package services

import (
	"context"
	"log"
	"time"

	"dancebattlez/apperrors"
	"dancebattlez/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TallyService turns a closed voting window into an outcome and settles
// the per-user aggregate counters. Finalization is idempotent: the
// status flip, the counter commits and the pending flag clear can each
// be replayed after a crash without double counting.
type TallyService struct {
	matches  MatchStore
	votes    VoteStore
	users    UserStore
	notifier Notifier
	now      func() int64
}

func NewTallyService(matches MatchStore, votes VoteStore, users UserStore, notifier Notifier) *TallyService {
	return &TallyService{
		matches:  matches,
		votes:    votes,
		users:    users,
		notifier: notifier,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the time source. Test hook.
func (s *TallyService) SetClock(now func() int64) { s.now = now }

type classifiedVote struct {
	vote  models.Vote
	class string
}

// Finalize closes a match: classifies the ballots, writes totals and
// outcome, then settles counters. With force set, an open window is
// closed early; otherwise a still-running window is left alone. Safe to
// call repeatedly on any status.
func (s *TallyService) Finalize(ctx context.Context, matchID string, force bool) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}

	switch m.Status {
	case models.StatusVotingOpen:
		if !force && s.now() < m.VotingClosesAt {
			return apperrors.New(apperrors.Conflict, "Voting window is still running")
		}
		return s.close(ctx, m)
	case models.StatusFinalized:
		if m.Reconcile {
			if err := s.reconcile(ctx, m); err != nil {
				return err
			}
			m, err = s.matches.Get(ctx, matchID)
			if err != nil {
				return err
			}
		}
		if m.TallyPending {
			return s.settle(ctx, m)
		}
		return nil
	case models.StatusWithdrawn:
		if m.TallyPending {
			return s.settleWithdrawn(ctx, m)
		}
		return nil
	default:
		return apperrors.Newf(apperrors.Conflict, "Battle is %s, nothing to finalize", m.Status)
	}
}

// close flips VOTING_OPEN to FINALIZED with the computed totals. The
// outbox flag rides in the same update, so a crash between the flip and
// the counter commits leaves a resumable match behind.
func (s *TallyService) close(ctx context.Context, m *models.Match) error {
	classified, aTotal, bTotal, err := s.classify(ctx, m)
	if err != nil {
		return err
	}

	now := s.now()
	status := models.StatusFinalized
	open := false
	outcome := outcomeFor(aTotal, bTotal)
	pending := true
	updated, err := s.matches.UpdateIf(ctx, m.MatchID, models.StatusVotingOpen, models.MatchUpdate{
		Status:       &status,
		Open:         &open,
		Outcome:      &outcome,
		ATotal:       &aTotal,
		BTotal:       &bTotal,
		FinalizedAt:  &now,
		TallyPending: &pending,
	})
	if err != nil {
		if apperrors.Is(err, apperrors.StaleStatus) {
			// Lost the race to another finalizer; re-enter to settle.
			return s.Finalize(ctx, m.MatchID, false)
		}
		return err
	}

	s.writeBackClasses(ctx, classified)
	return s.settle(ctx, updated)
}

// reconcile recomputes totals and outcome on an already finalized match
// without touching counters. Used after manual vote corrections.
func (s *TallyService) reconcile(ctx context.Context, m *models.Match) error {
	classified, aTotal, bTotal, err := s.classify(ctx, m)
	if err != nil {
		return err
	}
	outcome := outcomeFor(aTotal, bTotal)
	done := false
	_, err = s.matches.UpdateIf(ctx, m.MatchID, models.StatusFinalized, models.MatchUpdate{
		Outcome:   &outcome,
		ATotal:    &aTotal,
		BTotal:    &bTotal,
		Reconcile: &done,
	})
	if err != nil {
		return err
	}
	s.writeBackClasses(ctx, classified)
	return nil
}

func outcomeFor(aTotal, bTotal int) models.Outcome {
	switch {
	case aTotal > bTotal:
		return models.OutcomeAWins
	case bTotal > aTotal:
		return models.OutcomeBWins
	default:
		return models.OutcomeTie
	}
}

// classify walks the match's ballots and assigns each its counted
// class. Official ballots are demoted to unofficial when the voter no
// longer qualifies or voted outside the window; demotion is the only
// reclassification, a ballot is never promoted.
func (s *TallyService) classify(ctx context.Context, m *models.Match) ([]classifiedVote, int, int, error) {
	var classified []classifiedVote
	var aTotal, bTotal int
	voters := map[primitive.ObjectID]*models.User{}

	err := s.votes.ForMatch(ctx, m.MatchID, func(v *models.Vote) error {
		class := models.CountedUnofficial
		switch v.VoteType {
		case models.VoteJudge:
			if m.HasJudge(v.VoterID) && withinWindow(m, v) {
				class = models.CountedJudge
			}
		case models.VoteOfficial:
			if s.officialStillCounts(ctx, m, v, voters) {
				class = models.CountedFinal
			}
		}
		if class != models.CountedUnofficial {
			aTotal += v.ACampPoints
			bTotal += v.BCampPoints
		}
		classified = append(classified, classifiedVote{vote: *v, class: class})
		return nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return classified, aTotal, bTotal, nil
}

// withinWindow reports whether the ballot was cast while the voting
// window was running. Official and judge ballots outside it are demoted.
func withinWindow(m *models.Match, v *models.Vote) bool {
	return v.Timestamp >= m.VotingOpensAt && v.Timestamp <= m.VotingClosesAt
}

func (s *TallyService) officialStillCounts(ctx context.Context, m *models.Match, v *models.Vote, cache map[primitive.ObjectID]*models.User) bool {
	if !withinWindow(m, v) {
		return false
	}
	voter, ok := cache[v.VoterID]
	if !ok {
		u, err := s.users.GetByID(ctx, v.VoterID)
		if err != nil {
			// Unknown or unreadable voter, count the ballot unofficial.
			cache[v.VoterID] = nil
			return false
		}
		cache[v.VoterID] = u
		voter = u
	}
	return voter != nil && voter.IsVoter() && voter.HasSocialLink()
}

// writeBackClasses stamps each ballot with its counted class. Best
// effort, the class can be recomputed from the finalized match.
func (s *TallyService) writeBackClasses(ctx context.Context, classified []classifiedVote) {
	for _, cv := range classified {
		err := s.votes.SetCountedAs(ctx, cv.vote.MatchID, cv.vote.VoterID, cv.vote.VoteType, cv.class)
		if err != nil {
			log.Printf("tally: write countedAs for match %s voter %s: %v", cv.vote.MatchID, cv.vote.VoterID.Hex(), err)
		}
	}
}

// settle commits the per-user counter deltas for a finalized match and
// clears the outbox flag. Every delta goes through the ledger-guarded
// ApplyCounters, so replays are no-ops.
func (s *TallyService) settle(ctx context.Context, m *models.Match) error {
	classified, _, _, err := s.classify(ctx, m)
	if err != nil {
		return err
	}

	deltas := map[primitive.ObjectID]models.CounterDelta{}
	addDelta := func(id primitive.ObjectID, d models.CounterDelta) {
		cur := deltas[id]
		cur.MatchesWon += d.MatchesWon
		cur.MatchesLost += d.MatchesLost
		cur.MatchesWithdrawn += d.MatchesWithdrawn
		cur.CalloutsIssued += d.CalloutsIssued
		cur.ResponsesIssued += d.ResponsesIssued
		cur.VotesCastFor += d.VotesCastFor
		cur.VotesCastAgainst += d.VotesCastAgainst
		cur.JudgeVotes += d.JudgeVotes
		cur.FinalVotes += d.FinalVotes
		deltas[id] = cur
	}

	addDelta(m.AUserID, models.CounterDelta{CalloutsIssued: 1})
	addDelta(m.BUserID, models.CounterDelta{ResponsesIssued: 1})
	switch m.Outcome {
	case models.OutcomeAWins:
		addDelta(m.AUserID, models.CounterDelta{MatchesWon: 1})
		addDelta(m.BUserID, models.CounterDelta{MatchesLost: 1})
	case models.OutcomeBWins:
		addDelta(m.BUserID, models.CounterDelta{MatchesWon: 1})
		addDelta(m.AUserID, models.CounterDelta{MatchesLost: 1})
	}

	for _, cv := range classified {
		d := models.CounterDelta{}
		switch cv.class {
		case models.CountedFinal:
			d.FinalVotes = 1
		case models.CountedJudge:
			d.JudgeVotes = 1
		default:
			continue
		}
		d.VotesCastFor, d.VotesCastAgainst = voteAlignment(&cv.vote, m.Outcome)
		addDelta(cv.vote.VoterID, d)
	}

	committed := false
	for userID, delta := range deltas {
		if delta.IsZero() {
			continue
		}
		applied, err := s.users.ApplyCounters(ctx, userID, m.MatchID, delta)
		if err != nil {
			return err
		}
		if applied {
			committed = true
		}
	}

	cleared := false
	_, err = s.matches.UpdateIf(ctx, m.MatchID, models.StatusFinalized, models.MatchUpdate{
		TallyPending: &cleared,
	})
	if err != nil {
		return err
	}
	// A replay whose commits all hit the ledger already announced this
	// match; don't notify twice.
	if committed {
		s.notifier.MatchFinalized(m)
	}
	return nil
}

// settleWithdrawn replays the challenger's withdraw counter after a
// crash between the status flip and the flag clear.
func (s *TallyService) settleWithdrawn(ctx context.Context, m *models.Match) error {
	if _, err := s.users.ApplyCounters(ctx, m.AUserID, m.MatchID, models.CounterDelta{MatchesWithdrawn: 1}); err != nil {
		return err
	}
	cleared := false
	_, err := s.matches.UpdateIf(ctx, m.MatchID, models.StatusWithdrawn, models.MatchUpdate{
		TallyPending: &cleared,
	})
	return err
}

// voteAlignment scores one counted ballot against the outcome: a ballot
// whose majority side won counts as a vote cast for the winner, the
// opposite as a vote cast against. A tied outcome or an even 50/50
// split counts as neither.
func voteAlignment(v *models.Vote, outcome models.Outcome) (votesFor, votesAgainst int) {
	if outcome == models.OutcomeTie || v.ACampPoints == v.BCampPoints {
		return 0, 0
	}
	favorsA := v.ACampPoints > v.BCampPoints
	wonA := outcome == models.OutcomeAWins
	if favorsA == wonA {
		return 1, 0
	}
	return 0, 1
}

// RequestReconcile flags a finalized match for re-tally and runs it.
func (s *TallyService) RequestReconcile(ctx context.Context, matchID string) error {
	flag := true
	_, err := s.matches.UpdateIf(ctx, matchID, models.StatusFinalized, models.MatchUpdate{
		Reconcile: &flag,
	})
	if err != nil {
		if apperrors.Is(err, apperrors.StaleStatus) {
			return apperrors.New(apperrors.Conflict, "Only finalized battles can be reconciled")
		}
		return err
	}
	return s.Finalize(ctx, matchID, false)
}

// RebuildUserAggregates recomputes one user's counters from the match
// and vote collections and overwrites the stored aggregates. Repair
// tool for drifted counters.
func (s *TallyService) RebuildUserAggregates(ctx context.Context, username string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	var totals models.CounterDelta
	var tallied []string

	matches, err := s.matches.ByParticipant(ctx, username)
	if err != nil {
		return err
	}
	for i := range matches {
		m := &matches[i]
		isA := m.AUserID == user.ID
		switch m.Status {
		case models.StatusWithdrawn:
			if isA {
				totals.MatchesWithdrawn++
				tallied = append(tallied, m.MatchID)
			}
		case models.StatusFinalized:
			if m.TallyPending {
				continue
			}
			if isA {
				totals.CalloutsIssued++
			} else {
				totals.ResponsesIssued++
			}
			switch {
			case m.Outcome == models.OutcomeAWins && isA, m.Outcome == models.OutcomeBWins && !isA:
				totals.MatchesWon++
			case m.Outcome == models.OutcomeAWins && !isA, m.Outcome == models.OutcomeBWins && isA:
				totals.MatchesLost++
			}
			tallied = append(tallied, m.MatchID)
		}
	}

	votes, err := s.votes.ByVoter(ctx, user.ID)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, id := range tallied {
		seen[id] = true
	}
	for i := range votes {
		v := &votes[i]
		m, err := s.matches.Get(ctx, v.MatchID)
		if err != nil {
			if apperrors.Is(err, apperrors.NotFound) {
				continue
			}
			return err
		}
		if m.Status != models.StatusFinalized || m.TallyPending {
			continue
		}
		counted := false
		switch v.CountedAs {
		case models.CountedFinal:
			totals.FinalVotes++
			counted = true
		case models.CountedJudge:
			totals.JudgeVotes++
			counted = true
		}
		if counted {
			votesFor, votesAgainst := voteAlignment(v, m.Outcome)
			totals.VotesCastFor += votesFor
			totals.VotesCastAgainst += votesAgainst
			if !seen[v.MatchID] {
				seen[v.MatchID] = true
				tallied = append(tallied, v.MatchID)
			}
		}
	}

	return s.users.OverwriteAggregates(ctx, user.ID, totals, tallied)
}
