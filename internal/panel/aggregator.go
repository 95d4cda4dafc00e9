// Package panel convenes the fixed-size voting panel when the debate
// fails to converge, and applies the quorum rules to the collected
// ballots.
package panel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/models"
	"signal-arbiter/internal/providers"
	"signal-arbiter/pkg/utils"
)

// Perspectives are the viewpoint tags assigned to members in order,
// cycling when the panel is larger than the list.
var Perspectives = []string{
	"macro", "value", "growth", "contrarian", "momentum",
	"liquidity", "sentiment", "event-driven", "volatility", "technical",
}

// MemberCaller is the single-member vote contract. Each spawned member
// calls it exactly once, plus one retry on failure.
type MemberCaller interface {
	Vote(ctx context.Context, vc providers.VoteContext) (providers.Ballot, error)
}

// Aggregator spawns the panel and tallies the votes.
type Aggregator struct {
	size          int
	caller        MemberCaller
	memberTimeout time.Duration
	logger        zerolog.Logger
}

// NewAggregator creates a panel aggregator of exactly size members.
func NewAggregator(size int, caller MemberCaller, memberTimeout time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		size:          size,
		caller:        caller,
		memberTimeout: memberTimeout,
		logger:        logger,
	}
}

// Input carries everything each member sees: the full transcript, the
// quant scores and the policy verdict.
type Input struct {
	Symbol      string
	SpawnReason string
	Transcript  []models.DebateRound
	Composite   float64
	Scores      map[string]float64
	Policy      *models.PolicyResult
}

// Convene runs all members concurrently and aggregates their votes.
// Every member produces exactly one recorded vote: failures (after one
// retry) and cancellations become HOLD defaults with an error
// rationale, and always count toward the tally.
func (a *Aggregator) Convene(ctx context.Context, input Input) (*models.PanelResult, error) {
	votes := make([]models.PanelVote, a.size)

	var wg sync.WaitGroup
	for i := 0; i < a.size; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			votes[idx] = a.collectVote(ctx, input, idx)
		}(i)
	}
	wg.Wait()

	result := &models.PanelResult{
		SpawnReason: input.SpawnReason,
		Members:     votes,
		Tally:       tally(votes),
	}
	result.Decision, result.Escalated = Resolve(result.Tally, a.size)

	a.logger.Info().
		Str("symbol", input.Symbol).
		Int("buy", result.Tally[models.VoteBuy]).
		Int("sell", result.Tally[models.VoteSell]).
		Int("hold", result.Tally[models.VoteHold]).
		Str("decision", string(result.Decision)).
		Bool("escalated", result.Escalated).
		Msg("Panel resolved")

	return result, nil
}

func (a *Aggregator) collectVote(ctx context.Context, input Input, idx int) models.PanelVote {
	memberID := fmt.Sprintf("member-%02d", idx+1)
	perspective := Perspectives[idx%len(Perspectives)]

	vote := models.PanelVote{
		MemberID:    memberID,
		Perspective: perspective,
	}

	memberCtx, cancel := context.WithTimeout(ctx, a.memberTimeout)
	defer cancel()

	ballot, err := utils.RetryWithResult(memberCtx, utils.SingleRetry(), func() (providers.Ballot, error) {
		return a.caller.Vote(memberCtx, providers.VoteContext{
			Symbol:      input.Symbol,
			MemberID:    memberID,
			Perspective: perspective,
			Transcript:  input.Transcript,
			Composite:   input.Composite,
			Scores:      input.Scores,
			Policy:      input.Policy,
		})
	})
	if err != nil {
		a.logger.Warn().Str("member", memberID).Err(err).Msg("Panel member failed, recording HOLD default")
		vote.Vote = models.VoteHold
		vote.Rationale = fmt.Sprintf("member call failed after retry: %v", err)
		vote.Failed = true
		return vote
	}

	vote.Vote = ballot.Vote
	vote.Rationale = ballot.Rationale
	vote.Confidence = ballot.Confidence
	if !models.ValidVote(ballot.Vote) {
		a.logger.Warn().
			Str("member", memberID).
			Str("raw_vote", string(ballot.Vote)).
			Msg("Invalid panel vote coerced to HOLD")
		vote.Vote = models.VoteHold
		vote.Coerced = true
	}
	return vote
}

func tally(votes []models.PanelVote) map[models.Vote]int {
	t := map[models.Vote]int{
		models.VoteBuy:  0,
		models.VoteSell: 0,
		models.VoteHold: 0,
	}
	for _, v := range votes {
		t[v.Vote]++
	}
	return t
}

// Resolve applies the fixed quorum rules to a tally of size ballots.
// The order is not configurable:
//
//  1. An exact half/half split between any two outcomes escalates
//     (possible only for even panels).
//  2. A strict majority (> size/2) wins.
//  3. Anything else resolves to HOLD.
func Resolve(t map[models.Vote]int, size int) (models.Action, bool) {
	if size%2 == 0 {
		half := size / 2
		pairs := 0
		for _, count := range t {
			if count == half {
				pairs++
			}
		}
		if pairs == 2 {
			return models.ActionEscalated, true
		}
	}

	// Deterministic iteration so equal inputs resolve identically.
	outcomes := []models.Vote{models.VoteBuy, models.VoteSell, models.VoteHold}
	sort.SliceStable(outcomes, func(i, j int) bool { return t[outcomes[i]] > t[outcomes[j]] })
	if t[outcomes[0]] > size/2 {
		return models.Action(outcomes[0]), false
	}

	return models.ActionHold, false
}
