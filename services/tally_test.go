package services

import (
	"context"
	"testing"

	"dancebattlez/models"
)

func (f *fixture) finalize(t *testing.T, matchID string) *models.Match {
	t.Helper()
	ctx := context.Background()
	if err := f.tally.Finalize(ctx, matchID, false); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	m, err := f.matches.Get(ctx, matchID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return m
}

func TestFinalizeHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)
	f.vote(t, f.voterTwo, matchID, 80, 20, models.VoteOfficial)
	f.vote(t, f.judgeOne, matchID, 60, 40, models.VoteJudge)
	// Unofficial ballots are displayed but never counted.
	f.vote(t, f.spectator, matchID, 0, 100, models.VoteUnofficial)

	f.clock += 49 * 3600
	m := f.finalize(t, matchID)

	if m.Status != models.StatusFinalized {
		t.Fatalf("status = %s, want FINALIZED", m.Status)
	}
	if m.ATotal != 230 || m.BTotal != 70 {
		t.Fatalf("totals = %d/%d, want 230/70", m.ATotal, m.BTotal)
	}
	if m.Outcome != models.OutcomeAWins {
		t.Fatalf("outcome = %s, want A_wins", m.Outcome)
	}
	if m.TallyPending {
		t.Fatal("tallyPending still set after settle")
	}

	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	b, _ := f.users.GetByID(ctx, f.battlerB.ID)
	if a.MatchesWon != 1 || a.CalloutsIssued != 1 || a.MatchesLost != 0 {
		t.Fatalf("challenger counters = %+v", a)
	}
	if b.MatchesLost != 1 || b.ResponsesIssued != 1 || b.MatchesWon != 0 {
		t.Fatalf("respondent counters = %+v", b)
	}

	v1, _ := f.users.GetByID(ctx, f.voterOne.ID)
	if v1.FinalVotes != 1 || v1.VotesCastFor != 1 || v1.VotesCastAgainst != 0 {
		t.Fatalf("voterOne counters = %+v", v1)
	}
	j, _ := f.users.GetByID(ctx, f.judgeOne.ID)
	if j.JudgeVotes != 1 || j.VotesCastFor != 1 {
		t.Fatalf("judge counters = %+v", j)
	}
	sp, _ := f.users.GetByID(ctx, f.spectator.ID)
	if sp.FinalVotes != 0 || sp.VotesCastFor != 0 || sp.VotesCastAgainst != 0 {
		t.Fatalf("spectator counters = %+v", sp)
	}

	votes := f.votes.forMatch(matchID)
	for _, v := range votes {
		switch v.VoteType {
		case models.VoteOfficial:
			if v.CountedAs != models.CountedFinal {
				t.Errorf("official vote countedAs = %s", v.CountedAs)
			}
		case models.VoteJudge:
			if v.CountedAs != models.CountedJudge {
				t.Errorf("judge vote countedAs = %s", v.CountedAs)
			}
		default:
			if v.CountedAs != models.CountedUnofficial {
				t.Errorf("unofficial vote countedAs = %s", v.CountedAs)
			}
		}
	}
}

func TestFinalizeTie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 60, 40, models.VoteOfficial)
	f.vote(t, f.voterTwo, matchID, 40, 60, models.VoteOfficial)

	f.clock += 49 * 3600
	m := f.finalize(t, matchID)

	if m.Outcome != models.OutcomeTie {
		t.Fatalf("outcome = %s, want tie", m.Outcome)
	}

	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	b, _ := f.users.GetByID(ctx, f.battlerB.ID)
	if a.MatchesWon != 0 || a.MatchesLost != 0 || b.MatchesWon != 0 || b.MatchesLost != 0 {
		t.Fatal("a tie must not move win or loss counters")
	}
	if a.CalloutsIssued != 1 || b.ResponsesIssued != 1 {
		t.Fatal("participation counters must still move on a tie")
	}

	// On a tie there is no winner to align with.
	v1, _ := f.users.GetByID(ctx, f.voterOne.ID)
	if v1.FinalVotes != 1 || v1.VotesCastFor != 0 || v1.VotesCastAgainst != 0 {
		t.Fatalf("voterOne counters = %+v", v1)
	}
}

func TestFinalizeEvenSplitAlignsWithNeither(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 100, 0, models.VoteOfficial)
	f.vote(t, f.voterTwo, matchID, 50, 50, models.VoteOfficial)

	f.clock += 49 * 3600
	m := f.finalize(t, matchID)
	if m.Outcome != models.OutcomeAWins {
		t.Fatalf("outcome = %s, want A_wins", m.Outcome)
	}

	v2, _ := f.users.GetByID(ctx, f.voterTwo.ID)
	if v2.FinalVotes != 1 || v2.VotesCastFor != 0 || v2.VotesCastAgainst != 0 {
		t.Fatalf("even-split voter counters = %+v", v2)
	}
}

func TestFinalizeAgainstAlignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)
	f.vote(t, f.voterTwo, matchID, 20, 80, models.VoteOfficial)

	f.clock += 49 * 3600
	m := f.finalize(t, matchID)
	if m.Outcome != models.OutcomeAWins {
		t.Fatalf("outcome = %s, want A_wins", m.Outcome)
	}

	v2, _ := f.users.GetByID(ctx, f.voterTwo.ID)
	if v2.VotesCastFor != 0 || v2.VotesCastAgainst != 1 {
		t.Fatalf("losing-side voter counters = %+v", v2)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)

	f.clock += 49 * 3600
	first := f.finalize(t, matchID)
	second := f.finalize(t, matchID)

	if first.ATotal != second.ATotal || first.BTotal != second.BTotal || first.Outcome != second.Outcome {
		t.Fatal("repeated finalization changed the result")
	}

	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	v1, _ := f.users.GetByID(ctx, f.voterOne.ID)
	if a.MatchesWon != 1 || a.CalloutsIssued != 1 {
		t.Fatalf("challenger counters moved twice: %+v", a)
	}
	if v1.FinalVotes != 1 || v1.VotesCastFor != 1 {
		t.Fatalf("voter counters moved twice: %+v", v1)
	}
}

func TestFinalizeRefusesRunningWindow(t *testing.T) {
	f := newFixture(t)
	matchID := f.openVoting(t)

	err := f.tally.Finalize(context.Background(), matchID, false)
	if err == nil {
		t.Fatal("expected error finalizing a running window")
	}

	// A forced finalize closes it early.
	if err := f.tally.Finalize(context.Background(), matchID, true); err != nil {
		t.Fatalf("forced Finalize: %v", err)
	}
	m, _ := f.matches.Get(context.Background(), matchID)
	if m.Status != models.StatusFinalized {
		t.Fatalf("status = %s, want FINALIZED", m.Status)
	}
}

func TestFinalizeDemotesDisqualifiedOfficial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 0, 100, models.VoteOfficial)
	f.vote(t, f.judgeOne, matchID, 100, 0, models.VoteJudge)

	// The voter loses the role before the window closes.
	u, _ := f.users.GetByID(ctx, f.voterOne.ID)
	u.Voter = 0
	f.users.put(u)

	f.clock += 49 * 3600
	m := f.finalize(t, matchID)

	if m.ATotal != 100 || m.BTotal != 0 {
		t.Fatalf("totals = %d/%d, want 100/0 (demoted ballot not counted)", m.ATotal, m.BTotal)
	}
	if m.Outcome != models.OutcomeAWins {
		t.Fatalf("outcome = %s, want A_wins", m.Outcome)
	}

	v1, _ := f.users.GetByID(ctx, f.voterOne.ID)
	if v1.FinalVotes != 0 || v1.VotesCastAgainst != 0 {
		t.Fatalf("demoted voter counters = %+v", v1)
	}
	for _, v := range f.votes.forMatch(matchID) {
		if v.VoteType == models.VoteOfficial && v.CountedAs != models.CountedUnofficial {
			t.Fatalf("demoted ballot countedAs = %s", v.CountedAs)
		}
	}
}

func TestFinalizeDemotesLateJudgeBallot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 0, 100, models.VoteOfficial)

	// A judge ballot stamped after the window closed but stored while the
	// match still sat in VOTING_OPEN waiting for the sweeper.
	m, _ := f.matches.Get(ctx, matchID)
	late := &models.Vote{
		MatchID:     matchID,
		VoterID:     f.judgeOne.ID,
		VoterName:   f.judgeOne.Username,
		Timestamp:   m.VotingClosesAt + 60,
		ACampPoints: 100,
		BCampPoints: 0,
		VoteType:    models.VoteJudge,
	}
	if err := f.votes.Append(ctx, late, models.StatusVotingOpen); err != nil {
		t.Fatalf("Append: %v", err)
	}

	f.clock += 49 * 3600
	m = f.finalize(t, matchID)

	if m.ATotal != 0 || m.BTotal != 100 {
		t.Fatalf("totals = %d/%d, want 0/100 (late judge ballot not counted)", m.ATotal, m.BTotal)
	}
	if m.Outcome != models.OutcomeBWins {
		t.Fatalf("outcome = %s, want B_wins", m.Outcome)
	}

	j, _ := f.users.GetByID(ctx, f.judgeOne.ID)
	if j.JudgeVotes != 0 || j.VotesCastFor != 0 || j.VotesCastAgainst != 0 {
		t.Fatalf("late judge counters = %+v", j)
	}
	for _, v := range f.votes.forMatch(matchID) {
		if v.VoteType == models.VoteJudge && v.CountedAs != models.CountedUnofficial {
			t.Fatalf("late judge ballot countedAs = %s", v.CountedAs)
		}
	}
}

func TestSettleReplayAfterCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)
	f.clock += 49 * 3600
	f.finalize(t, matchID)

	// Simulate a crash between the status flip and the flag clear: the
	// pending flag is back but the ledgers already carry the commits.
	pending := true
	if _, err := f.matches.UpdateIf(ctx, matchID, models.StatusFinalized, models.MatchUpdate{TallyPending: &pending}); err != nil {
		t.Fatalf("reset tallyPending: %v", err)
	}

	if err := f.tally.Finalize(ctx, matchID, false); err != nil {
		t.Fatalf("replay Finalize: %v", err)
	}

	m, _ := f.matches.Get(ctx, matchID)
	if m.TallyPending {
		t.Fatal("replay did not clear tallyPending")
	}
	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	if a.MatchesWon != 1 {
		t.Fatalf("replay double-counted: matchesWon = %d", a.MatchesWon)
	}
}

func TestWithdrawSettleReplayAfterCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.callout(t, 48)
	if err := f.lifecycle.VerifyCallout(ctx, matchID); err != nil {
		t.Fatalf("VerifyCallout: %v", err)
	}

	// Simulate a crash right after the status flip: the match sits in
	// WITHDRAWN with the pending flag set and no counter committed yet.
	now := f.clock
	status := models.StatusWithdrawn
	open := false
	outcome := models.OutcomeWithdrawn
	pending := true
	_, err := f.matches.UpdateIf(ctx, matchID, models.StatusAwaitingReply, models.MatchUpdate{
		Status:       &status,
		Open:         &open,
		Outcome:      &outcome,
		FinalizedAt:  &now,
		TallyPending: &pending,
	})
	if err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}

	sweeper := NewSweeper(f.matches, f.tally)
	sweeper.Sweep(ctx)

	m, _ := f.matches.Get(ctx, matchID)
	if m.TallyPending {
		t.Fatal("sweep did not settle the withdrawn match")
	}
	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	if a.MatchesWithdrawn != 1 {
		t.Fatalf("matchesWithdrawn = %d, want 1", a.MatchesWithdrawn)
	}

	// Replaying is a no-op.
	if err := f.tally.Finalize(ctx, matchID, false); err != nil {
		t.Fatalf("replay Finalize: %v", err)
	}
	a, _ = f.users.GetByID(ctx, f.battlerA.ID)
	if a.MatchesWithdrawn != 1 {
		t.Fatalf("replay double-counted: matchesWithdrawn = %d", a.MatchesWithdrawn)
	}
}

func TestWithdrawClearsPendingFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.callout(t, 48)
	if err := f.lifecycle.VerifyCallout(ctx, matchID); err != nil {
		t.Fatalf("VerifyCallout: %v", err)
	}
	if err := f.lifecycle.Withdraw(ctx, f.auth(f.battlerA), matchID); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	m, _ := f.matches.Get(ctx, matchID)
	if m.TallyPending {
		t.Fatal("withdraw left tallyPending set")
	}
}

func TestFinalizeNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)
	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)

	f.clock += 49 * 3600
	f.finalize(t, matchID)
	if got := f.notifs.finalizedCount(matchID); got != 1 {
		t.Fatalf("finalized notifications = %d, want 1", got)
	}

	// Crash window replay: pending flag back, counters already committed.
	pending := true
	if _, err := f.matches.UpdateIf(ctx, matchID, models.StatusFinalized, models.MatchUpdate{TallyPending: &pending}); err != nil {
		t.Fatalf("reset tallyPending: %v", err)
	}
	if err := f.tally.Finalize(ctx, matchID, false); err != nil {
		t.Fatalf("replay Finalize: %v", err)
	}
	if got := f.notifs.finalizedCount(matchID); got != 1 {
		t.Fatalf("replay re-sent the notification: %d", got)
	}
}

func TestReconcileRecomputesTotalsWithoutCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 0, 100, models.VoteOfficial)
	f.vote(t, f.judgeOne, matchID, 100, 0, models.VoteJudge)

	f.clock += 49 * 3600
	m := f.finalize(t, matchID)
	if m.Outcome != models.OutcomeTie {
		t.Fatalf("outcome = %s, want tie", m.Outcome)
	}

	// The official voter is disqualified after the fact; reconciliation
	// reclassifies and recomputes.
	u, _ := f.users.GetByID(ctx, f.voterOne.ID)
	u.Voter = 0
	f.users.put(u)

	if err := f.tally.RequestReconcile(ctx, matchID); err != nil {
		t.Fatalf("RequestReconcile: %v", err)
	}

	m, _ = f.matches.Get(ctx, matchID)
	if m.ATotal != 100 || m.BTotal != 0 || m.Outcome != models.OutcomeAWins {
		t.Fatalf("after reconcile totals = %d/%d outcome = %s", m.ATotal, m.BTotal, m.Outcome)
	}
	if m.Reconcile {
		t.Fatal("reconcile flag still set")
	}

	// Counters stay where the first settle left them.
	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	if a.MatchesWon != 0 {
		t.Fatalf("reconcile moved counters: matchesWon = %d", a.MatchesWon)
	}
}

func TestReconcileRequiresFinalized(t *testing.T) {
	f := newFixture(t)
	matchID := f.openVoting(t)
	if err := f.tally.RequestReconcile(context.Background(), matchID); err == nil {
		t.Fatal("expected error reconciling an open battle")
	}
}

func TestSweepFinalizesDueMatches(t *testing.T) {
	f := newFixture(t)
	matchID := f.openVoting(t)
	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)

	// The fixture clock sits in the past, so the window has long closed
	// relative to the sweeper's wall clock.
	f.clock += 49 * 3600
	sweeper := NewSweeper(f.matches, f.tally)
	sweeper.Sweep(context.Background())

	m, _ := f.matches.Get(context.Background(), matchID)
	if m.Status != models.StatusFinalized {
		t.Fatalf("status after sweep = %s, want FINALIZED", m.Status)
	}
	if m.TallyPending {
		t.Fatal("sweep left tallyPending set")
	}
}

func TestRebuildUserAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	matchID := f.openVoting(t)

	f.vote(t, f.voterOne, matchID, 90, 10, models.VoteOfficial)
	f.clock += 49 * 3600
	f.finalize(t, matchID)

	// Drift the stored aggregates, then rebuild from the source of truth.
	if err := f.users.OverwriteAggregates(ctx, f.voterOne.ID, models.CounterDelta{FinalVotes: 7, VotesCastFor: 7}, nil); err != nil {
		t.Fatalf("OverwriteAggregates: %v", err)
	}
	if err := f.tally.RebuildUserAggregates(ctx, f.voterOne.Username); err != nil {
		t.Fatalf("RebuildUserAggregates: %v", err)
	}
	v1, _ := f.users.GetByID(ctx, f.voterOne.ID)
	if v1.FinalVotes != 1 || v1.VotesCastFor != 1 {
		t.Fatalf("rebuilt voter counters = %+v", v1)
	}

	if err := f.tally.RebuildUserAggregates(ctx, f.battlerA.Username); err != nil {
		t.Fatalf("RebuildUserAggregates: %v", err)
	}
	a, _ := f.users.GetByID(ctx, f.battlerA.ID)
	if a.MatchesWon != 1 || a.CalloutsIssued != 1 {
		t.Fatalf("rebuilt challenger counters = %+v", a)
	}
}
