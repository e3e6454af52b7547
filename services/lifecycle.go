package services

import (
	"context"
	"time"

	"dancebattlez/apperrors"
	"dancebattlez/config"
	"dancebattlez/models"
	"dancebattlez/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LifecycleService is the battle state machine. It admits or rejects
// operations against the current match status and performs every
// transition through the match store's compare-and-set; it holds no
// locks of its own.
type LifecycleService struct {
	matches  MatchStore
	votes    VoteStore
	users    UserStore
	notifier Notifier
	cfg      *config.Config
	now      func() int64
}

func NewLifecycleService(matches MatchStore, votes VoteStore, users UserStore, notifier Notifier, cfg *config.Config) *LifecycleService {
	return &LifecycleService{
		matches:  matches,
		votes:    votes,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the time source. Test hook.
func (s *LifecycleService) SetClock(now func() int64) { s.now = now }

// CalloutRequest carries a challenge submission.
type CalloutRequest struct {
	OpponentID          string   `json:"opponentId" binding:"required"`
	Judges              []string `json:"judges"`
	VideoRef            string   `json:"videoRef" binding:"required"`
	ImageRef            string   `json:"imageRef"`
	Rules               string   `json:"rules"`
	VotingDurationHours int      `json:"votingDurationHours" binding:"required"`
}

// SubmitCallout creates a DRAFT match for caller vs opponent.
func (s *LifecycleService) SubmitCallout(ctx context.Context, caller *AuthUser, req CalloutRequest) (string, error) {
	if !caller.Battler {
		return "", apperrors.New(apperrors.Forbidden, "You are not a battler")
	}
	if !caller.Registered {
		return "", apperrors.New(apperrors.Forbidden, "Only registered users may issue callouts")
	}
	if req.VotingDurationHours < s.cfg.Battle.MinVotingDurationHours ||
		req.VotingDurationHours > s.cfg.Battle.MaxVotingDurationHours {
		return "", apperrors.Newf(apperrors.BadDuration, "Voting duration must be between %d and %d hours",
			s.cfg.Battle.MinVotingDurationHours, s.cfg.Battle.MaxVotingDurationHours)
	}

	opponentID, err := primitive.ObjectIDFromHex(req.OpponentID)
	if err != nil {
		return "", apperrors.New(apperrors.BadInput, "Invalid opponent id")
	}
	if opponentID == caller.ID {
		return "", apperrors.New(apperrors.BadInput, "You can't call yourself out")
	}

	opponent, err := s.users.GetByID(ctx, opponentID)
	if err != nil {
		if apperrors.Is(err, apperrors.NotFound) {
			return "", apperrors.New(apperrors.BadInput, "Can't find your target or your target is not a battler")
		}
		return "", err
	}
	if !opponent.IsBattler() {
		return "", apperrors.New(apperrors.BadInput, "Can't find your target or your target is not a battler")
	}

	judges, err := s.resolveJudges(ctx, req.Judges, caller.ID, opponentID)
	if err != nil {
		return "", err
	}

	now := s.now()
	match := &models.Match{
		MatchID:             uuid.NewString(),
		PairKey:             utils.PairKey(caller.ID, opponentID),
		Open:                true,
		AUserID:             caller.ID,
		BUserID:             opponentID,
		AUsername:           caller.Username,
		BUsername:           opponent.Username,
		Judges:              judges,
		CalloutVideoRef:     req.VideoRef,
		CalloutImageRef:     req.ImageRef,
		Rules:               req.Rules,
		VotingDurationHours: req.VotingDurationHours,
		Status:              models.StatusDraft,
		CreatedAt:           now,
	}

	if err := s.matches.Create(ctx, match); err != nil {
		return "", err
	}
	s.notifier.CalloutSubmitted(match)
	return match.MatchID, nil
}

// resolveJudges validates up to five nominated judges: each must exist,
// hold the judge role, and not be one of the camps.
func (s *LifecycleService) resolveJudges(ctx context.Context, ids []string, aID, bID primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(ids) > 5 {
		return nil, apperrors.New(apperrors.BadInput, "At most five judges may be nominated")
	}
	judges := make([]primitive.ObjectID, 0, len(ids))
	for _, raw := range ids {
		if raw == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, apperrors.Newf(apperrors.BadInput, "Invalid judge id %q", raw)
		}
		if id == aID || id == bID {
			return nil, apperrors.New(apperrors.BadInput, "Judge list includes one of the camps")
		}
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.NotFound) {
				return nil, apperrors.Newf(apperrors.BadInput, "Judge %q doesn't exist", raw)
			}
			return nil, err
		}
		if !user.IsJudge() {
			return nil, apperrors.Newf(apperrors.BadInput, "%s is not a judge", user.Username)
		}
		judges = append(judges, id)
	}
	return judges, nil
}

// transition runs one compare-and-set step and translates a lost race
// into InvalidTransition naming the state the loser actually observed.
func (s *LifecycleService) transition(ctx context.Context, matchID string, from models.MatchStatus, upd models.MatchUpdate) (*models.Match, error) {
	m, err := s.matches.UpdateIf(ctx, matchID, from, upd)
	if err == nil {
		return m, nil
	}
	if !apperrors.Is(err, apperrors.StaleStatus) {
		return nil, err
	}
	current, getErr := s.matches.Get(ctx, matchID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.Newf(apperrors.InvalidTransition, "Battle is %s", current.Status)
}

// VerifyCallout is the admin switch that publishes a callout.
func (s *LifecycleService) VerifyCallout(ctx context.Context, matchID string) error {
	status := models.StatusAwaitingReply
	verified := true
	_, err := s.transition(ctx, matchID, models.StatusDraft, models.MatchUpdate{
		Status:    &status,
		AVerified: &verified,
	})
	return err
}

// ReplyRequest carries the respondent's submission.
type ReplyRequest struct {
	MatchID        string `json:"matchId" binding:"required"`
	VideoRef       string `json:"videoRef" binding:"required"`
	ImageRef       string `json:"imageRef"`
	ResponderReply string `json:"responderReply"`
}

// SubmitReply records the B camp's response on a verified callout.
func (s *LifecycleService) SubmitReply(ctx context.Context, caller *AuthUser, req ReplyRequest) error {
	m, err := s.matches.Get(ctx, req.MatchID)
	if err != nil {
		return err
	}
	if m.BUserID != caller.ID {
		return apperrors.New(apperrors.Forbidden, "You are not the respondent of this battle")
	}
	if m.Status == models.StatusDraft {
		return apperrors.New(apperrors.InvalidTransition, "Callout has not been verified yet")
	}

	now := s.now()
	status := models.StatusReplyDraft
	updated, err := s.transition(ctx, req.MatchID, models.StatusAwaitingReply, models.MatchUpdate{
		Status:           &status,
		ResponseVideoRef: &req.VideoRef,
		ResponseImageRef: &req.ImageRef,
		ResponderReply:   &req.ResponderReply,
		ResponseAt:       &now,
	})
	if err != nil {
		return err
	}
	s.notifier.ReplySubmitted(updated)
	return nil
}

// VerifyReply is the admin switch that opens the voting window.
func (s *LifecycleService) VerifyReply(ctx context.Context, matchID string) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}

	now := s.now()
	closes := now + int64(m.VotingDurationHours)*3600
	status := models.StatusVotingOpen
	verified := true
	_, err = s.transition(ctx, matchID, models.StatusReplyDraft, models.MatchUpdate{
		Status:         &status,
		BVerified:      &verified,
		VotingOpensAt:  &now,
		VotingClosesAt: &closes,
	})
	return err
}

// Withdraw lets the challenger take back a callout nobody answered.
// Reachable from AWAITING_REPLY only.
func (s *LifecycleService) Withdraw(ctx context.Context, caller *AuthUser, matchID string) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if m.AUserID != caller.ID {
		return apperrors.New(apperrors.Forbidden, "Only the challenger may withdraw")
	}

	now := s.now()
	status := models.StatusWithdrawn
	open := false
	outcome := models.OutcomeWithdrawn
	pending := true
	_, err = s.transition(ctx, matchID, models.StatusAwaitingReply, models.MatchUpdate{
		Status:       &status,
		Open:         &open,
		Outcome:      &outcome,
		FinalizedAt:  &now,
		TallyPending: &pending,
	})
	if err != nil {
		return err
	}

	// Ledger-guarded, so a retried withdraw never double-counts. A crash
	// before the flag clear leaves the pending flag set and the sweeper
	// replays the commit.
	if _, err := s.users.ApplyCounters(ctx, m.AUserID, matchID, models.CounterDelta{MatchesWithdrawn: 1}); err != nil {
		return err
	}
	cleared := false
	if _, err := s.matches.UpdateIf(ctx, matchID, models.StatusWithdrawn, models.MatchUpdate{TallyPending: &cleared}); err != nil {
		return err
	}
	return nil
}

// VoteRequest carries a ballot.
type VoteRequest struct {
	MatchID      string `json:"matchId" binding:"required"`
	ACampPoints  int    `json:"aCampPoints"`
	BCampPoints  int    `json:"bCampPoints"`
	VoteType     int    `json:"voteType"`
	Statement    string `json:"statement"`
	SignatureRef string `json:"signatureRef"`
	ChainTxRef   string `json:"chainTxRef"`
}

// CastVote admits a ballot against the current match state and appends
// it. The vote store re-checks the status snapshot and the uniqueness
// triple, so a racing finalization or duplicate fails cleanly.
func (s *LifecycleService) CastVote(ctx context.Context, caller *AuthUser, req VoteRequest) error {
	vote := &models.Vote{
		MatchID:      req.MatchID,
		VoterID:      caller.ID,
		VoterName:    caller.Username,
		Timestamp:    s.now(),
		ACampPoints:  req.ACampPoints,
		BCampPoints:  req.BCampPoints,
		VoteType:     req.VoteType,
		Statement:    req.Statement,
		SignatureRef: req.SignatureRef,
		ChainTxRef:   req.ChainTxRef,
	}
	if !vote.ValidSplit() {
		return apperrors.New(apperrors.BadSplit, "Camp points must be non-negative and sum to 100")
	}
	if req.VoteType != models.VoteUnofficial && req.VoteType != models.VoteOfficial && req.VoteType != models.VoteJudge {
		return apperrors.New(apperrors.BadInput, "Unknown vote type")
	}

	m, err := s.matches.Get(ctx, req.MatchID)
	if err != nil {
		return err
	}
	if m.IsParticipant(caller.ID) {
		return apperrors.New(apperrors.Forbidden, "You are a camp of this battle")
	}

	switch m.Status {
	case models.StatusVotingOpen:
		if err := s.admitOpenVote(ctx, caller, m, vote); err != nil {
			return err
		}
	case models.StatusFinalized:
		if req.VoteType != models.VoteUnofficial {
			return apperrors.New(apperrors.Conflict, "Voting ended, only unofficial voting is available")
		}
	default:
		return apperrors.New(apperrors.Conflict, "Battle is not open for voting")
	}

	return s.votes.Append(ctx, vote, m.Status)
}

// admitOpenVote applies the per-type admissibility rules while the
// window is running.
func (s *LifecycleService) admitOpenVote(ctx context.Context, caller *AuthUser, m *models.Match, vote *models.Vote) error {
	switch vote.VoteType {
	case models.VoteUnofficial:
		return nil
	case models.VoteOfficial:
		if !caller.Voter {
			return apperrors.New(apperrors.Forbidden, "You don't hold the voter role")
		}
		if !caller.SocialLinked {
			return apperrors.New(apperrors.Forbidden, "Official voting requires a linked social account")
		}
		if vote.Timestamp < m.VotingOpensAt || vote.Timestamp > m.VotingClosesAt {
			return apperrors.New(apperrors.Conflict, "Voting window has closed")
		}
		if limit := s.cfg.Battle.VotePeriodCap; limit > 0 {
			since := vote.Timestamp - 24*3600
			n, err := s.votes.CountForVoter(ctx, caller.ID, models.VoteOfficial, since)
			if err != nil {
				return err
			}
			if n >= int64(limit) {
				return apperrors.Newf(apperrors.Forbidden, "Official vote cap of %d per day reached", limit)
			}
		}
		return nil
	case models.VoteJudge:
		if !m.HasJudge(caller.ID) {
			return apperrors.New(apperrors.Forbidden, "You are not a judge of this battle")
		}
		if vote.Timestamp < m.VotingOpensAt || vote.Timestamp > m.VotingClosesAt {
			return apperrors.New(apperrors.Conflict, "Voting window has closed")
		}
		return nil
	}
	return apperrors.New(apperrors.BadInput, "Unknown vote type")
}

// MatchDetail is the read model for the battle page: the match plus live
// totals and what kind of vote the viewer may still cast.
type MatchDetail struct {
	Match      *models.Match `json:"match"`
	ATotal     int           `json:"aTotal"`
	BTotal     int           `json:"bTotal"`
	VotingType string        `json:"votingType"`
}

// Voting availability values for the detail endpoint.
const (
	VotingNot        = "none"
	VotingOfficial   = "official"
	VotingJudge      = "judge"
	VotingUnofficial = "unofficial"
)

// Detail loads a match with its current counted totals. For a finalized
// match the stored totals are authoritative; while voting runs they are
// recomputed from the admitted ballots for display.
func (s *LifecycleService) Detail(ctx context.Context, matchID string, caller *AuthUser) (*MatchDetail, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}

	detail := &MatchDetail{Match: m, ATotal: m.ATotal, BTotal: m.BTotal, VotingType: VotingNot}
	if m.Status == models.StatusVotingOpen {
		var aTotal, bTotal int
		err := s.votes.ForMatch(ctx, matchID, func(v *models.Vote) error {
			if v.VoteType == models.VoteOfficial || v.VoteType == models.VoteJudge {
				aTotal += v.ACampPoints
				bTotal += v.BCampPoints
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		detail.ATotal, detail.BTotal = aTotal, bTotal
	}

	if caller == nil || m.IsParticipant(caller.ID) {
		return detail, nil
	}

	voted := false
	if err := s.votes.ForMatch(ctx, matchID, func(v *models.Vote) error {
		if v.VoterID == caller.ID {
			voted = true
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if voted {
		return detail, nil
	}

	switch m.Status {
	case models.StatusVotingOpen:
		if m.HasJudge(caller.ID) {
			detail.VotingType = VotingJudge
		} else if caller.Voter && caller.SocialLinked {
			detail.VotingType = VotingOfficial
		} else {
			detail.VotingType = VotingUnofficial
		}
	case models.StatusFinalized:
		detail.VotingType = VotingUnofficial
	}
	return detail, nil
}

// List pages through verified battles.
func (s *LifecycleService) List(ctx context.Context, f models.MatchFilter) ([]models.Match, int, error) {
	if f.Count <= 0 {
		f.Count = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	matches, total, err := s.matches.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return matches, maxPages(total, f.Count), nil
}

// VoteList pages through a match's votes.
func (s *LifecycleService) VoteList(ctx context.Context, matchID string, f models.VoteFilter) ([]models.Vote, int, *models.Match, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, 0, nil, err
	}
	if f.Count <= 0 {
		f.Count = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	votes, total, err := s.votes.ListForMatch(ctx, matchID, f)
	if err != nil {
		return nil, 0, nil, err
	}
	return votes, maxPages(total, f.Count), m, nil
}

// AwaitingMyReply lists verified callouts still waiting on the caller.
func (s *LifecycleService) AwaitingMyReply(ctx context.Context, caller *AuthUser) ([]models.Match, error) {
	return s.matches.AwaitingReplyFrom(ctx, caller.Username)
}

// SearchOpponents pages through battlers available for a callout.
func (s *LifecycleService) SearchOpponents(ctx context.Context, search string, count, page int) ([]models.UserCard, int, error) {
	if count <= 0 {
		count = 20
	}
	if page <= 0 {
		page = 1
	}
	users, total, err := s.users.SearchBattlers(ctx, search, count, page)
	if err != nil {
		return nil, 0, err
	}
	cards := make([]models.UserCard, 0, len(users))
	for i := range users {
		cards = append(cards, users[i].Card())
	}
	return cards, maxPages(total, count), nil
}

func maxPages(total int64, count int) int {
	pages := int(total) / count
	if int(total)%count != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}
