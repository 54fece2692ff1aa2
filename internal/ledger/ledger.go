// Package ledger is the public economic data model: every user account,
// the server-owned internal accounts, pending trust elections, and the
// global statistics. All operations are pure state transitions over an
// externally supplied "now" in whole minutes, so a replayed command
// sequence reconstructs the identical state. Nothing here knows about
// persistence; the journal owns that.
package ledger

import (
	"log/slog"
	"sort"

	"github.com/basisd/basis/internal/econ"
	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// Reserved internal account IDs. User IDs and internal IDs live in
// separate maps, so the ranges only matter within internalAccounts.
const (
	// ServerAccountID receives every fee.
	ServerAccountID int32 = 0

	// AuthFundsAccountID pools election fees until voters are paid.
	AuthFundsAccountID int32 = 1

	// MinInternalAccountID is the first server-generated transient ID.
	MinInternalAccountID int32 = 65536
)

// NoSponsor marks a server-created account with no sponsoring user.
const NoSponsor int32 = -1

// Ledger is the full public state. Exported fields are what a snapshot
// serializes; params and the logger are process configuration.
type Ledger struct {
	// EpochDay is the simulated day this state has been advanced to.
	EpochDay epoch.Days `json:"epochDay"`

	// UserIDGen yields account IDs; it wraps around and skips IDs in
	// use, so deleted IDs are eventually reused.
	UserIDGen int32 `json:"userIdGen"`

	// InternalIDGen yields transient internal account IDs.
	InternalIDGen int32 `json:"internalIdGen"`

	Accounts  map[int32]*Account  `json:"accounts"`
	Internal  map[int32]int64     `json:"internal"`
	Elections map[int32]*Election `json:"elections"`

	// Statistics. TotalMoney and TotalTrusted are recomputed every tick;
	// between ticks they are maintained incrementally.
	TotalMoney   int64 `json:"totalMoney"`
	TotalTx      int64 `json:"totalTx"`
	TotalTrusted int32 `json:"totalTrusted"`
	TotalDays    int32 `json:"totalDays"`

	// TxPerHour counts requests per hour-of-day for the stats page.
	TxPerHour  map[int8]int64 `json:"txPerHour"`
	TxLastHour int8           `json:"txLastHour"`

	params *econ.Params
	log    *slog.Logger
}

// New returns an empty ledger positioned at the current wall-clock day.
func New(params *econ.Params, log *slog.Logger) *Ledger {
	l := &Ledger{
		EpochDay:      epoch.Today(),
		UserIDGen:     -1,
		InternalIDGen: MinInternalAccountID,
		Accounts:      map[int32]*Account{},
		Internal:      map[int32]int64{},
		Elections:     map[int32]*Election{},
		TxPerHour:     map[int8]int64{},
		TxLastHour:    -1,
	}
	l.SetRuntime(params, log)
	return l
}

// SetRuntime attaches the process configuration. It must be called
// after restoring a ledger from a snapshot, which only carries state.
func (l *Ledger) SetRuntime(params *econ.Params, log *slog.Logger) {
	l.params = params
	l.log = log
}

// countTx bumps the request counters. The hour bucket derives from the
// command timestamp, not the wall clock, so replay agrees.
func (l *Ledger) countTx(now epoch.Minutes) {
	l.TotalTx++
	hour := int8((now / 60) % 24)
	if hour != l.TxLastHour {
		l.TxLastHour = hour
		l.TxPerHour[hour] = 1
	} else {
		l.TxPerHour[hour]++
	}
}

// chargeFee moves up to amount from acc into an internal account and
// logs it. With exact set, a partial charge is refused entirely. With
// ignoreLocked set, invite-locked funds count as chargeable.
func (l *Ledger) chargeFee(acc *Account, internalID int32, code LogCode,
	amount int64, peer int32, now epoch.Minutes, exact, ignoreLocked bool) int64 {

	source := acc.UnlockedBalance()
	if ignoreLocked {
		source = acc.Balance
	}
	charge := min(source, amount)
	if charge <= 0 || (exact && charge < amount) {
		return 0
	}
	acc.Balance -= charge
	l.creditInternalAccount(internalID, charge)
	acc.appendLog(LogEntry{Timestamp: now, Code: code, Amount: -amount, Peer: peer})
	return charge
}

// payFromInternalAccount moves up to amount from an internal account to
// acc, paying whatever is left if the pool has run low.
func (l *Ledger) payFromInternalAccount(internalID int32, acc *Account,
	amount int64, code LogCode, peer int32, now epoch.Minutes) int64 {

	pool := l.Internal[internalID]
	charge := min(pool, amount)
	l.Internal[internalID] = pool - charge
	acc.Balance += charge
	acc.appendLog(LogEntry{Timestamp: now, Code: code, Amount: charge, Peer: peer})
	return charge
}

func (l *Ledger) creditInternalAccount(internalID int32, amount int64) {
	l.Internal[internalID] += amount
}

// InternalBalance returns an internal account's balance; a missing
// entry means zero.
func (l *Ledger) InternalBalance(internalID int32) int64 {
	return l.Internal[internalID]
}

// nextUserID assigns the next free ID, wrapping around and skipping
// live accounts. Fails when the account count is at capacity.
func (l *Ledger) nextUserID() (int32, errcode.Code) {
	if len(l.Accounts) >= l.params.MaxUserAccounts {
		return 0, errcode.Failed
	}
	for {
		l.UserIDGen++
		if l.UserIDGen < 0 {
			l.UserIDGen = 0
		}
		if _, used := l.Accounts[l.UserIDGen]; !used {
			return l.UserIDGen, errcode.OK
		}
	}
}

// CreateUser adds a prepared account under a fresh ID. A non-negative
// sponsorID wires the hard-coded reciprocal validation link. A nonzero
// starting balance only happens on the anchor-invite path, where the
// server creates new money directly into the account.
func (l *Ledger) CreateUser(acc *Account, sponsorID int32, now epoch.Minutes) (int32, errcode.Code) {
	l.countTx(now)

	id, code := l.nextUserID()
	if code != errcode.OK {
		return 0, code
	}
	l.Accounts[id] = acc

	if acc.Balance > 0 {
		l.TotalMoney += acc.Balance
		acc.appendLog(LogEntry{Timestamp: now, Code: LogInviteMoneyReceived, Amount: acc.Balance, Peer: sponsorID})
	}

	if sponsorID >= 0 {
		if sponsor := l.Accounts[sponsorID]; sponsor != nil {
			sponsor.ValidationOut.Add(id)
			acc.ValidationIn.Add(sponsorID)
			acc.ValidationOut.Add(sponsorID)
			sponsor.ValidationIn.Add(id)
		}
	}

	if acc.IsTrusted() {
		l.TotalTrusted++
	}
	return id, errcode.OK
}

// DeleteUser tears an account down and removes it.
func (l *Ledger) DeleteUser(userID int32, now epoch.Minutes) errcode.Code {
	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.NotFound
	}
	l.finishUserAccount(userID, acc, now)
	delete(l.Accounts, userID)
	return errcode.OK
}

// finishUserAccount does every part of deleting an account except the
// map removal, which stays with the caller so tick can delete during
// its own iteration.
func (l *Ledger) finishUserAccount(userID int32, acc *Account, now epoch.Minutes) {
	// Resolve any election judging this user.
	if acc.AuthSelfID >= 0 {
		l.finishElection(userID, now)
		delete(l.Elections, userID)
	}

	// Withdraw any vote this user owes, which may finish that election.
	if acc.AuthOtherID >= 0 {
		if el := l.Elections[acc.AuthOtherID]; el != nil {
			el.deleteVoter(userID)
			if el.finished() {
				l.finishElection(acc.AuthOtherID, now)
				delete(l.Elections, acc.AuthOtherID)
			}
		}
	}

	// Strip this ID out of every peer's link sets.
	for peerID := range acc.ValidationIn {
		if peer := l.Accounts[peerID]; peer != nil {
			peer.ValidationOut.Remove(userID)
		}
	}
	for peerID := range acc.ValidationOut {
		if peer := l.Accounts[peerID]; peer != nil {
			peer.ValidationIn.Remove(userID)
		}
	}

	// Whatever this account held is destroyed with it.
	l.TotalMoney -= acc.Balance

	if acc.IsTrusted() {
		l.TotalTrusted--
	}
}

// SendMoney moves amount from one user to another, charging the flat
// transaction fee. With exact set, anything short of amount+fee fails
// the whole transfer. With locked set, the transfer spends
// invite-locked funds and releases the lock as it goes; that path is
// only taken by invite acceptance and skips the fee.
func (l *Ledger) SendMoney(fromID, toID int32, amount int64, exact, locked bool, now epoch.Minutes) (int64, errcode.Code) {
	l.countTx(now)

	from := l.Accounts[fromID]
	if from == nil {
		return 0, errcode.InvalidSource
	}
	to := l.Accounts[toID]
	if to == nil {
		return 0, errcode.InvalidDestination
	}
	if amount <= 0 {
		return 0, errcode.InvalidAmount
	}

	// A locked send spends invite-locked funds and carries no fee; the
	// invite already paid its own fee when the funds were locked.
	balance := from.UnlockedBalance()
	totalCharge := amount + l.params.TransactionFee
	if locked {
		balance = from.Balance
		totalCharge = amount
	}

	available := min(balance, totalCharge)
	if available <= 0 || (exact && available != totalCharge) {
		return 0, errcode.InsufficientFunds
	}

	if !locked {
		l.chargeFee(from, ServerAccountID, LogFeeSendMoney, l.params.TransactionFee, -1, now, true, false)
	}

	sent := min(balance, amount)
	from.Balance -= sent
	to.Balance += sent

	if locked {
		from.MinBalance -= sent
		if from.MinBalance < 0 {
			l.log.Error("minBalance went negative on locked send, clamping",
				"user", fromID, "minBalance", from.MinBalance)
			from.MinBalance = 0
		}
		from.appendLog(LogEntry{Timestamp: now, Code: LogInviteFundsSent, Amount: -sent, Peer: toID})
		to.appendLog(LogEntry{Timestamp: now, Code: LogInviteMoneyReceived, Amount: sent, Peer: fromID})
	} else {
		from.appendLog(LogEntry{Timestamp: now, Code: LogSendMoney, Amount: -sent, Peer: toID})
		to.appendLog(LogEntry{Timestamp: now, Code: LogReceiveMoney, Amount: sent, Peer: fromID})
	}
	return sent, errcode.OK
}

// CreateInvite locks amount of the sponsor's balance for an invitation
// and charges the anti-spam fee. The invitation code itself lives in
// the credential store and is allocated after this succeeds.
func (l *Ledger) CreateInvite(sponsorID int32, amount int64, now epoch.Minutes) errcode.Code {
	l.countTx(now)

	sponsor := l.Accounts[sponsorID]
	if sponsor == nil {
		return errcode.InvalidSource
	}
	// Untrusted users cannot invite; this throttles account spam and
	// keeps new users pointed at earning trust first.
	if !sponsor.IsTrusted() {
		return errcode.NotTrusted
	}
	if amount < l.params.MinInviteAmount {
		return errcode.InsufficientAmount
	}
	if sponsor.UnlockedBalance() < amount+l.params.TransactionFee {
		return errcode.InsufficientFunds
	}
	if sponsor.ValidationLinkCount() >= l.params.MaxUniqueValidationIDs {
		return errcode.SourceLimitReached
	}

	sponsor.MinBalance += amount
	sponsor.appendLog(LogEntry{Timestamp: now, Code: LogInviteFundsLocked, Amount: -amount, Peer: -1})
	l.chargeFee(sponsor, ServerAccountID, LogFeeCreateInvite, l.params.TransactionFee, -1, now, true, false)
	return errcode.OK
}

// InviteLock is the ledger-side view of one cancelled or expired
// invite whose lock has to be released.
type InviteLock struct {
	SponsorID int32 `json:"sponsor"`
	Amount    int64 `json:"amount"`
}

// ReleaseInviteLocks lowers each sponsor's minBalance for invites that
// were cancelled or expired without being accepted.
func (l *Ledger) ReleaseInviteLocks(locks []InviteLock, now epoch.Minutes) {
	for _, lock := range locks {
		acc := l.Accounts[lock.SponsorID]
		if acc == nil {
			continue
		}
		acc.MinBalance -= lock.Amount
		if acc.MinBalance < 0 {
			l.log.Error("minBalance went negative releasing invite lock, clamping",
				"user", lock.SponsorID, "minBalance", acc.MinBalance)
			acc.MinBalance = 0
		}
		acc.appendLog(LogEntry{Timestamp: now, Code: LogInviteFundsUnlocked, Amount: lock.Amount, Peer: -1})
	}
}

// AddValidation adds a directed trust link. A link the peer has not
// reciprocated costs the anti-spam fee; reciprocating an existing
// inbound link is free.
func (l *Ledger) AddValidation(userID, otherID int32, now epoch.Minutes) errcode.Code {
	l.countTx(now)

	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.InvalidSource
	}
	other := l.Accounts[otherID]
	if other == nil {
		return errcode.InvalidDestination
	}
	if acc.ValidationLinkCount() >= l.params.MaxUniqueValidationIDs {
		return errcode.SourceLimitReached
	}
	if other.ValidationLinkCount() >= l.params.MaxUniqueValidationIDs {
		return errcode.DestinationLimitReached
	}
	if acc.ValidationOut.Has(otherID) {
		return errcode.AlreadyExists
	}

	if !other.ValidationOut.Has(userID) {
		charge := l.chargeFee(acc, ServerAccountID, LogFeeValidation,
			l.params.NonreciprocalValidationFee, -1, now, true, false)
		if charge <= 0 {
			return errcode.InsufficientAmount
		}
	}
	acc.ValidationOut.Add(otherID)
	other.ValidationIn.Add(userID)
	return errcode.OK
}

// RemoveValidation drops the selected directions of a trust link.
func (l *Ledger) RemoveValidation(userID, otherID int32, inbound, outbound bool, now epoch.Minutes) errcode.Code {
	l.countTx(now)

	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.InvalidSource
	}
	other := l.Accounts[otherID]
	if other == nil {
		return errcode.InvalidDestination
	}

	if inbound && acc.ValidationIn.Has(otherID) {
		acc.ValidationIn.Remove(otherID)
		other.ValidationOut.Remove(userID)
	}
	if outbound && acc.ValidationOut.Has(otherID) {
		acc.ValidationOut.Remove(otherID)
		other.ValidationIn.Remove(userID)
	}
	return errcode.OK
}

// RequestTrust starts a self-requested trust election.
func (l *Ledger) RequestTrust(userID int32, now epoch.Minutes) errcode.Code {
	return l.doRequestTrust(userID, userID, now)
}

// ChallengeTrust starts an election to strip another user's trust.
func (l *Ledger) ChallengeTrust(sourceID, targetID int32, now epoch.Minutes) errcode.Code {
	if sourceID == targetID {
		return errcode.Forbidden
	}
	return l.doRequestTrust(sourceID, targetID, now)
}

// VoteTrust records the caller's ballot in the election they owe a vote
// to, pays the voting reward from the auth-funds pool, and resolves the
// election if this ballot settles it.
func (l *Ledger) VoteTrust(voterID int32, approve bool, now epoch.Minutes) errcode.Code {
	acc := l.Accounts[voterID]
	if acc == nil {
		return errcode.NotFound
	}
	if acc.AuthOtherID < 0 {
		return errcode.NothingToDo
	}
	el := l.Elections[acc.AuthOtherID]
	if el == nil {
		acc.AuthOtherID = -1
		return errcode.Expired
	}

	el.vote(voterID, approve)

	targetID := acc.AuthOtherID
	acc.AuthOtherID = -1

	// Challenges pay the higher reward. If the target vanished, pay the
	// self-request rate and let the difference sit in the pool.
	perVoteFee := l.params.AuthPerVoteFee
	if targ := l.Accounts[targetID]; targ != nil && targ.AuthSelfID != targetID {
		perVoteFee = l.params.AuthChallengePerVoteFee
	}
	l.payFromInternalAccount(AuthFundsAccountID, acc, perVoteFee, LogTrustVoteReward, -1, now)

	if el.finished() {
		l.finishElection(targetID, now)
		delete(l.Elections, targetID)
	}
	return errcode.OK
}

// BurnMoney destroys amount from the user's balance, shrinking the
// money supply, and charges the transaction fee. The signed receipt is
// produced by the caller afterwards; if signing fails the caller rolls
// back with UnburnMoney.
func (l *Ledger) BurnMoney(userID int32, amount int64, now epoch.Minutes) errcode.Code {
	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.NotFound
	}
	if amount <= 0 {
		return errcode.InvalidAmount
	}
	if acc.UnlockedBalance() < amount+l.params.TransactionFee {
		return errcode.InsufficientFunds
	}
	acc.Balance -= amount
	l.TotalMoney -= amount
	acc.appendLog(LogEntry{Timestamp: now, Code: LogBurn, Amount: -amount, Peer: -1})
	l.chargeFee(acc, ServerAccountID, LogFeeBurn, l.params.TransactionFee, -1, now, true, false)
	return errcode.OK
}

// UnburnMoney is the exact inverse of BurnMoney, including the fee
// refund. It exists only to roll back a burn whose receipt could not be
// signed.
func (l *Ledger) UnburnMoney(userID int32, amount int64, now epoch.Minutes) errcode.Code {
	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.NotFound
	}
	acc.Balance += amount
	l.TotalMoney += amount
	l.payFromInternalAccount(ServerAccountID, acc, l.params.TransactionFee, LogRefundFeeBurn, -1, now)
	acc.appendLog(LogEntry{Timestamp: now, Code: LogUnburn, Amount: amount, Peer: -1})
	return errcode.OK
}

// SetAnchorStatus flips the administrative permanent-trust flag.
func (l *Ledger) SetAnchorStatus(userID int32, anchor bool) errcode.Code {
	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.NotFound
	}
	if acc.IsAnchor() == anchor {
		return errcode.NothingToDo
	}
	if anchor {
		acc.setAnchor()
		if !acc.IsAuthentic() {
			l.TotalTrusted++
		}
	} else {
		acc.clearAnchor()
		if !acc.IsAuthentic() {
			l.TotalTrusted--
		}
	}
	return errcode.OK
}

// EditPersonalInfo replaces the user's name and profile, charging the
// transaction fee on a best-effort basis.
func (l *Ledger) EditPersonalInfo(userID int32, name string, profile []string, now epoch.Minutes) errcode.Code {
	l.countTx(now)

	acc := l.Accounts[userID]
	if acc == nil {
		return errcode.InvalidSource
	}
	acc.Name = name
	acc.Profile = profile
	acc.Trim()

	l.chargeFee(acc, ServerAccountID, LogFeeEditInfo, l.params.TransactionFee, -1, now, false, true)
	return errcode.OK
}

// TouchLoginTimestamp stamps a successful login, which is what keeps an
// account counted as active.
func (l *Ledger) TouchLoginTimestamp(userID int32, now epoch.Minutes) {
	if acc := l.Accounts[userID]; acc != nil {
		acc.LastLogin = now
	}
}

// GetAccount returns the account record or nil.
func (l *Ledger) GetAccount(userID int32) *Account {
	return l.Accounts[userID]
}

// GetUserNames maps each existing requested ID to its display name.
func (l *Ledger) GetUserNames(userIDs []int32) map[int32]string {
	names := make(map[int32]string, len(userIDs))
	for _, id := range userIDs {
		if acc := l.Accounts[id]; acc != nil {
			names[id] = acc.Name
		}
	}
	return names
}

// Stats is the aggregate snapshot served to the stats page.
type Stats struct {
	TotalDays     int32
	EpochDay      epoch.Days
	UserCount     int
	TotalTrusted  int32
	TotalMoney    int64
	TotalTx       int64
	RecentTx      int64
	ServerBalance int64
}

// GetStats aggregates the global counters.
func (l *Ledger) GetStats() Stats {
	s := Stats{
		TotalDays:     l.TotalDays,
		EpochDay:      l.EpochDay,
		UserCount:     len(l.Accounts),
		TotalTrusted:  l.TotalTrusted,
		TotalMoney:    l.TotalMoney,
		TotalTx:       l.TotalTx,
		ServerBalance: l.Internal[ServerAccountID],
	}
	for _, n := range l.TxPerHour {
		s.RecentTx += n
	}
	return s
}

// sortedAccountIDs returns every user ID in ascending order. Tick and
// expiry walks use it so mutation order is identical on replay.
func (l *Ledger) sortedAccountIDs() []int32 {
	ids := make([]int32, 0, len(l.Accounts))
	for id := range l.Accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
