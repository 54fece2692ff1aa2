package ledger

import (
	"sort"

	"github.com/basisd/basis/internal/epoch"
)

// Tick runs the daily economic step and returns the IDs of accounts
// destroyed by it, so the caller can clean up their credential records.
//
// Ordering inside one account matters: demurrage closes out the ending
// day on yesterday's balance, then the new day's money moves (UBI, the
// inactivity charge, the upkeep fee). Each collection is walked once,
// in ascending ID order so a replayed tick mutates in the same order.
func (l *Ledger) Tick(now epoch.Minutes) []int32 {
	var deleted []int32

	l.TotalDays++
	l.EpochDay++

	// Recomputed from scratch this pass.
	l.TotalMoney = 0
	l.TotalTrusted = 0

	// Internal accounts: demurrage only. Entries are never deleted
	// here; a missing entry already means zero, so whoever creates a
	// transient account is the one who removes it.
	internalIDs := make([]int32, 0, len(l.Internal))
	for id := range l.Internal {
		internalIDs = append(internalIDs, id)
	}
	sort.Slice(internalIDs, func(i, j int) bool { return internalIDs[i] < internalIDs[j] })
	for _, id := range internalIDs {
		bal := l.params.ApplyDailyDemurrage(l.Internal[id])
		l.Internal[id] = bal
		l.TotalMoney += bal
	}

	for _, userID := range l.sortedAccountIDs() {
		acc := l.Accounts[userID]
		if acc == nil {
			continue // deleted earlier in this same pass
		}

		if acc.IsTrusted() {
			l.TotalTrusted++
		}

		// Close out yesterday.
		reduced := l.params.ApplyDailyDemurrage(acc.Balance)
		demCharge := acc.Balance - reduced
		acc.Balance = reduced
		acc.appendLog(LogEntry{Timestamp: now, Code: LogDemurrage, Amount: -demCharge, Peer: -1})

		minutesIdle := now - acc.LastLogin
		active := int32(minutesIdle) < l.params.InactivityMinutes

		// Inactive accounts get no UBI and bleed balance at a rate that
		// grows with days of inactivity. After a long server outage the
		// minute gap jumps at once, so one big catch-up charge lands
		// instead of smooth daily ones; that is accepted behavior.
		if !active {
			daysIdle := 1 + int64(minutesIdle)/epoch.MinutesPerDay
			charge := min(acc.Balance, daysIdle*l.params.DailyAccountFee)
			acc.Balance -= charge
			acc.appendLog(LogEntry{Timestamp: now, Code: LogInactivityCharge, Amount: -charge, Peer: -1})
		}

		// The new day's fresh money.
		if active && acc.IsTrusted() {
			acc.Balance += l.params.UBIAmount
			acc.appendLog(LogEntry{Timestamp: now, Code: LogUBI, Amount: l.params.UBIAmount, Peer: -1})
		}

		// Count before the upkeep fee moves money into the server
		// account, which was already counted in the internal pass.
		l.TotalMoney += acc.Balance

		upkeep := l.chargeFee(acc, ServerAccountID, LogMaintenanceFee,
			l.params.DailyAccountFee, -1, now, false, true)

		// An account that cannot cover its upkeep is destroyed.
		if acc.Balance < 0 || (acc.Balance == 0 && upkeep < l.params.DailyAccountFee) {
			deleted = append(deleted, userID)
			l.finishUserAccount(userID, acc, now)
			delete(l.Accounts, userID)
		}
	}

	// Resolve elections that ran out the clock. Voters who never cast a
	// ballot get no reward; the requester is refunded for their slots.
	targetIDs := make([]int32, 0, len(l.Elections))
	for id := range l.Elections {
		targetIDs = append(targetIDs, id)
	}
	sort.Slice(targetIDs, func(i, j int) bool { return targetIDs[i] < targetIDs[j] })
	for _, targetID := range targetIDs {
		el := l.Elections[targetID]
		if el != nil && el.expired(now, l.params.AuthTimeoutMinutes) {
			l.finishElection(targetID, now)
			delete(l.Elections, targetID)
		}
	}

	return deleted
}
