package ledger

import (
	"sort"

	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// Election tracks one pending trust vote over a target account. Votes
// maps each selected voter to their ballot; nil means not cast yet.
// The ledger keys elections by target ID and is the only owner; an
// election is deleted by its caller immediately after resolution, so no
// resolved entry ever lingers.
type Election struct {
	Votes map[int32]*bool `json:"votes"`
	Start epoch.Minutes   `json:"start"`
}

func newElection(voters []int32, now epoch.Minutes) *Election {
	e := &Election{
		Votes: make(map[int32]*bool, len(voters)),
		Start: now,
	}
	for _, id := range voters {
		e.Votes[id] = nil
	}
	return e
}

func (e *Election) expired(now epoch.Minutes, timeout int32) bool {
	return now > e.Start+epoch.Minutes(timeout)
}

func (e *Election) vote(voterID int32, v bool) {
	e.Votes[voterID] = &v
}

func (e *Election) deleteVoter(voterID int32) {
	delete(e.Votes, voterID)
}

// finished reports whether the outcome can no longer change: one side
// holds a guaranteed majority, the "no" side holds exactly half of an
// even voter count (ties reject), or every ballot is in.
func (e *Election) finished() bool {
	total := len(e.Votes)
	yes, no, uncast := e.tally()
	switch {
	case yes > total/2:
		return true
	case no > total/2:
		return true
	case total%2 == 0 && no == total/2:
		return true
	case uncast == 0:
		return true
	}
	return false
}

// winner is the current result; a tie resolves to not trusted.
func (e *Election) winner() bool {
	yes, no, _ := e.tally()
	return yes > no
}

func (e *Election) tally() (yes, no, uncast int) {
	for _, v := range e.Votes {
		switch {
		case v == nil:
			uncast++
		case *v:
			yes++
		default:
			no++
		}
	}
	return yes, no, uncast
}

// doRequestTrust starts an election over target's trusted status. It
// backs both the self-request and the challenge path; the two differ in
// quorum, per-vote fee, and log code.
func (l *Ledger) doRequestTrust(sourceID, targetID int32, now epoch.Minutes) errcode.Code {
	selfRequest := sourceID == targetID

	var (
		minVoters   int
		perVoteFee  int64
		feeLogCode  LogCode
		totalVoters = l.params.AuthTotalVotes
	)
	if selfRequest {
		minVoters = 1
		perVoteFee = l.params.AuthPerVoteFee
		feeLogCode = LogTrustRequestFee
	} else {
		// A challenge may only start with the full complement of voters.
		minVoters = l.params.AuthTotalVotes
		perVoteFee = l.params.AuthChallengePerVoteFee
		feeLogCode = LogChallengeFee
	}

	src := l.Accounts[sourceID]
	if src == nil {
		return errcode.InvalidSource
	}
	targ := l.Accounts[targetID]
	if targ == nil {
		return errcode.InvalidDestination
	}
	if targ.AuthSelfID >= 0 {
		return errcode.AlreadyExists
	}

	if selfRequest {
		if targ.IsTrusted() {
			return errcode.NothingToDo
		}
	} else {
		if !targ.IsTrusted() {
			return errcode.NothingToDo
		}
		if targ.IsAnchor() {
			return errcode.Forbidden
		}
	}

	voters := l.sampleVoters(sourceID, targetID, totalVoters, now)
	if len(voters) < minVoters {
		return errcode.LimitReached
	}

	fee := int64(len(voters)) * perVoteFee
	if src.UnlockedBalance() < fee {
		return errcode.InsufficientFunds
	}

	// Past all error exits; commit the election.
	targ.AuthSelfID = sourceID
	for _, voterID := range voters {
		l.Accounts[voterID].AuthOtherID = targetID
	}
	l.chargeFee(src, AuthFundsAccountID, feeLogCode, fee, targetID, now, true, false)
	l.Elections[targetID] = newElection(voters, now)
	return errcode.OK
}

// sampleVoters draws voters with a PRNG seeded from the target ID and
// the command timestamp, both fixed inputs, so a replay selects the
// identical set. Candidates are drawn from the sorted ID list; map
// iteration order would not replay.
func (l *Ledger) sampleVoters(sourceID, targetID int32, want int, now epoch.Minutes) []int32 {
	allIDs := make([]int32, 0, len(l.Accounts))
	for id := range l.Accounts {
		allIDs = append(allIDs, id)
	}
	sort.Slice(allIDs, func(i, j int) bool { return allIDs[i] < allIDs[j] })

	rnd := newSplitMix64(uint64(uint32(targetID)) * uint64(uint32(now)))
	picked := make(map[int32]bool, want)
	var voters []int32
	for i := 0; i < 10000 && len(voters) < want; i++ {
		voterID := allIDs[rnd.intn(len(allIDs))]
		voter := l.Accounts[voterID]
		if voter.IsTrusted() &&
			voter.AuthOtherID < 0 && // not already busy voting
			voter.AuthSelfID < 0 && // own trust not under election
			!picked[voterID] &&
			voterID != sourceID &&
			voterID != targetID {
			picked[voterID] = true
			voters = append(voters, voterID)
		}
	}
	return voters
}

// finishElection applies the outcome of an election: flips the trust
// flag, stamps the verification time, releases voters who never cast a
// ballot, and refunds the requester one per-vote fee per uncast vote,
// capped by whatever the auth-funds pool still holds.
//
// It never removes the entry from l.Elections. The caller does that,
// always, right after this returns; keeping entry lifetime in exactly
// one place is what lets resolution stay idempotent-free and simple.
func (l *Ledger) finishElection(targetID int32, now epoch.Minutes) {
	targ := l.Accounts[targetID]
	if targ == nil {
		return
	}
	el := l.Elections[targetID]
	if el == nil {
		return
	}

	approved := el.winner()
	if approved {
		if !targ.IsTrusted() {
			l.TotalTrusted++
		}
		targ.setAuthentic()
	} else {
		if targ.IsAuthentic() && !targ.IsAnchor() {
			l.TotalTrusted--
		}
		targ.clearAuthentic()
	}
	targ.LastVerification = now

	sourceID := targ.AuthSelfID
	targ.AuthSelfID = -1

	// Release voters still marked busy for this election; each one is
	// an uncast vote the requester gets refunded for.
	refundVotes := 0
	for voterID := range el.Votes {
		voter := l.Accounts[voterID]
		if voter != nil && voter.AuthOtherID == targetID {
			voter.AuthOtherID = -1
			refundVotes++
		}
	}

	var (
		perVoteFee int64
		logCode    LogCode
	)
	if sourceID == targetID {
		perVoteFee = l.params.AuthPerVoteFee
		if approved {
			logCode = LogTrustRequestApproved
		} else {
			logCode = LogTrustRequestRejected
		}
	} else {
		perVoteFee = l.params.AuthChallengePerVoteFee
		if approved {
			logCode = LogChallengeApproved
		} else {
			logCode = LogChallengeRejected
		}
	}
	if src := l.Accounts[sourceID]; src != nil {
		l.payFromInternalAccount(AuthFundsAccountID, src,
			int64(refundVotes)*perVoteFee, logCode, targetID, now)
	}
}
