package ledger

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisd/basis/internal/econ"
	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// testDay pins the starting day so snapshots compare byte-for-byte
// regardless of when the test runs.
const testDay epoch.Days = 20000

const testNow = epoch.Minutes(testDay) * epoch.MinutesPerDay

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(econ.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.EpochDay = testDay
	return l
}

// addUser creates an account directly, bypassing the invite flow.
func addUser(t *testing.T, l *Ledger, name string, balance int64, trusted bool) int32 {
	t.Helper()
	acc := NewAccount(name, nil, testNow)
	acc.Balance = balance
	if trusted {
		acc.setAuthentic()
	}
	id, code := l.CreateUser(acc, NoSponsor, testNow)
	require.Equal(t, errcode.OK, code)
	return id
}

// totalSupply sums every balance in existence. It must equal the
// incrementally maintained TotalMoney at all times between ticks.
func totalSupply(l *Ledger) int64 {
	var sum int64
	for _, acc := range l.Accounts {
		sum += acc.Balance
	}
	for _, bal := range l.Internal {
		sum += bal
	}
	return sum
}

func lastLog(t *testing.T, acc *Account) LogEntry {
	t.Helper()
	require.NotEmpty(t, acc.Log)
	return acc.Log[len(acc.Log)-1]
}

func hasLogCode(acc *Account, code LogCode) bool {
	for _, e := range acc.Log {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestLedger_CreateUserSponsorLinks(t *testing.T) {
	l := newTestLedger(t)
	sponsor := addUser(t, l, "sponsor", 0, true)

	acc := NewAccount("newcomer", nil, testNow)
	id, code := l.CreateUser(acc, sponsor, testNow)
	require.Equal(t, errcode.OK, code)

	sp := l.GetAccount(sponsor)
	assert.True(t, sp.ValidationOut.Has(id))
	assert.True(t, sp.ValidationIn.Has(id))
	assert.True(t, acc.ValidationOut.Has(sponsor))
	assert.True(t, acc.ValidationIn.Has(sponsor))

	assert.Equal(t, int32(1), l.TotalTrusted)
	assert.False(t, acc.IsTrusted())
}

func TestLedger_CreateUserStartBalanceIsMinted(t *testing.T) {
	l := newTestLedger(t)

	acc := NewAccount("anchor-invitee", nil, testNow)
	acc.Balance = 100 * econ.Coin
	id, code := l.CreateUser(acc, NoSponsor, testNow)
	require.Equal(t, errcode.OK, code)

	assert.Equal(t, int64(100*econ.Coin), l.TotalMoney)
	assert.Equal(t, l.TotalMoney, totalSupply(l))
	assert.Equal(t, LogInviteMoneyReceived, lastLog(t, l.GetAccount(id)).Code)
}

func TestLedger_UserIDWrapSkipsLiveAccounts(t *testing.T) {
	l := newTestLedger(t)
	first := addUser(t, l, "first", 0, false)
	require.Equal(t, int32(0), first)

	l.UserIDGen = math.MaxInt32
	second := addUser(t, l, "second", 0, false)
	assert.Equal(t, int32(1), second, "wraparound must skip the live ID 0")
}

func TestLedger_DeleteUserStripsLinksAndMoney(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 5000, true)
	b := addUser(t, l, "b", 0, false)
	require.Equal(t, errcode.OK, l.AddValidation(a, b, testNow))

	require.Equal(t, errcode.OK, l.DeleteUser(a, testNow))

	assert.Nil(t, l.GetAccount(a))
	assert.False(t, l.GetAccount(b).ValidationIn.Has(a))
	assert.Equal(t, int32(0), l.TotalTrusted)
	assert.Equal(t, l.TotalMoney, totalSupply(l))
	assert.Equal(t, errcode.NotFound, l.DeleteUser(a, testNow))
}

func TestLedger_SendMoneyExact(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()
	a := addUser(t, l, "a", 10*econ.Coin, true)
	b := addUser(t, l, "b", 0, false)

	sent, code := l.SendMoney(a, b, 3*econ.Coin, true, false, testNow)
	require.Equal(t, errcode.OK, code)
	assert.Equal(t, int64(3*econ.Coin), sent)

	assert.Equal(t, 7*econ.Coin-p.TransactionFee, l.GetAccount(a).Balance)
	assert.Equal(t, int64(3*econ.Coin), l.GetAccount(b).Balance)
	assert.Equal(t, p.TransactionFee, l.InternalBalance(ServerAccountID))
	assert.Equal(t, l.TotalMoney, totalSupply(l))

	assert.Equal(t, LogSendMoney, l.GetAccount(a).Log[len(l.GetAccount(a).Log)-1].Code)
	assert.Equal(t, LogReceiveMoney, lastLog(t, l.GetAccount(b)).Code)
}

func TestLedger_SendMoneyErrors(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 100, true)
	b := addUser(t, l, "b", 0, false)

	_, code := l.SendMoney(99, b, 10, true, false, testNow)
	assert.Equal(t, errcode.InvalidSource, code)

	_, code = l.SendMoney(a, 99, 10, true, false, testNow)
	assert.Equal(t, errcode.InvalidDestination, code)

	_, code = l.SendMoney(a, b, 0, true, false, testNow)
	assert.Equal(t, errcode.InvalidAmount, code)

	// exact send must cover amount plus the fee in unlocked funds
	_, code = l.SendMoney(a, b, 100, true, false, testNow)
	assert.Equal(t, errcode.InsufficientFunds, code)
	assert.Equal(t, int64(100), l.GetAccount(a).Balance)
	assert.Equal(t, int64(0), l.GetAccount(b).Balance)
}

func TestLedger_SendMoneyLockedFundsAreNotSpendable(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()
	a := addUser(t, l, "a", p.MinInviteAmount+p.TransactionFee, true)
	b := addUser(t, l, "b", 0, false)

	require.Equal(t, errcode.OK, l.CreateInvite(a, p.MinInviteAmount, testNow))

	// everything unlocked went into the invite lock and its fee
	_, code := l.SendMoney(a, b, 1, true, false, testNow)
	assert.Equal(t, errcode.InsufficientFunds, code)
}

// The invite acceptance round trip: the sponsor ends down by exactly
// the invite amount plus one transaction fee, the lock is fully
// released, and the invitee holds exactly the invite amount.
func TestLedger_InviteLifecycle(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()
	start := int64(50 * econ.Coin)
	a := addUser(t, l, "sponsor", start, true)

	require.Equal(t, errcode.OK, l.CreateInvite(a, p.MinInviteAmount, testNow))

	sp := l.GetAccount(a)
	assert.Equal(t, p.MinInviteAmount, sp.MinBalance)
	assert.Equal(t, start-p.TransactionFee, sp.Balance)
	assert.True(t, hasLogCode(sp, LogInviteFundsLocked))

	bAcc := NewAccount("invitee", nil, testNow)
	b, code := l.CreateUser(bAcc, a, testNow)
	require.Equal(t, errcode.OK, code)

	sent, code := l.SendMoney(a, b, p.MinInviteAmount, true, true, testNow)
	require.Equal(t, errcode.OK, code)
	assert.Equal(t, p.MinInviteAmount, sent)

	assert.Equal(t, start-p.MinInviteAmount-p.TransactionFee, sp.Balance)
	assert.Equal(t, int64(0), sp.MinBalance)
	assert.Equal(t, p.MinInviteAmount, bAcc.Balance)
	assert.Equal(t, LogInviteMoneyReceived, lastLog(t, bAcc).Code)
	assert.Equal(t, l.TotalMoney, totalSupply(l))
}

func TestLedger_CreateInviteErrors(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()

	untrusted := addUser(t, l, "plain", 100*econ.Coin, false)
	assert.Equal(t, errcode.NotTrusted, l.CreateInvite(untrusted, p.MinInviteAmount, testNow))

	rich := addUser(t, l, "rich", 100*econ.Coin, true)
	assert.Equal(t, errcode.InsufficientAmount, l.CreateInvite(rich, p.MinInviteAmount-1, testNow))

	poor := addUser(t, l, "poor", p.MinInviteAmount, true)
	assert.Equal(t, errcode.InsufficientFunds, l.CreateInvite(poor, p.MinInviteAmount, testNow))
	assert.Equal(t, int64(0), l.GetAccount(poor).MinBalance)
}

func TestLedger_ReleaseInviteLocks(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()
	a := addUser(t, l, "a", 50*econ.Coin, true)
	require.Equal(t, errcode.OK, l.CreateInvite(a, p.MinInviteAmount, testNow))

	l.ReleaseInviteLocks([]InviteLock{{SponsorID: a, Amount: p.MinInviteAmount}}, testNow)

	acc := l.GetAccount(a)
	assert.Equal(t, int64(0), acc.MinBalance)
	assert.Equal(t, 50*econ.Coin-p.TransactionFee, acc.Balance)
	assert.True(t, hasLogCode(acc, LogInviteFundsUnlocked))

	// unknown sponsors are skipped without panicking
	l.ReleaseInviteLocks([]InviteLock{{SponsorID: 99, Amount: 1}}, testNow)
}

func TestLedger_AddValidationFeeOnlyWhenNotReciprocated(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()
	a := addUser(t, l, "a", 1000, false)
	b := addUser(t, l, "b", 1000, false)

	require.Equal(t, errcode.OK, l.AddValidation(a, b, testNow))
	assert.Equal(t, 1000-p.NonreciprocalValidationFee, l.GetAccount(a).Balance)
	assert.Equal(t, p.NonreciprocalValidationFee, l.InternalBalance(ServerAccountID))

	// reciprocating an inbound link is free
	require.Equal(t, errcode.OK, l.AddValidation(b, a, testNow))
	assert.Equal(t, int64(1000), l.GetAccount(b).Balance)

	assert.Equal(t, errcode.AlreadyExists, l.AddValidation(a, b, testNow))

	broke := addUser(t, l, "broke", p.NonreciprocalValidationFee-1, false)
	assert.Equal(t, errcode.InsufficientAmount, l.AddValidation(broke, a, testNow))
	assert.False(t, l.GetAccount(broke).ValidationOut.Has(a))
	assert.False(t, l.GetAccount(a).ValidationIn.Has(broke))
}

func TestLedger_RemoveValidation(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 1000, false)
	b := addUser(t, l, "b", 1000, false)
	require.Equal(t, errcode.OK, l.AddValidation(a, b, testNow))
	require.Equal(t, errcode.OK, l.AddValidation(b, a, testNow))

	require.Equal(t, errcode.OK, l.RemoveValidation(a, b, false, true, testNow))
	assert.False(t, l.GetAccount(a).ValidationOut.Has(b))
	assert.False(t, l.GetAccount(b).ValidationIn.Has(a))
	// the other direction survives
	assert.True(t, l.GetAccount(a).ValidationIn.Has(b))
	assert.True(t, l.GetAccount(b).ValidationOut.Has(a))

	require.Equal(t, errcode.OK, l.RemoveValidation(a, b, true, false, testNow))
	assert.Empty(t, l.GetAccount(a).ValidationIn)
	assert.Empty(t, l.GetAccount(b).ValidationOut)
}

func TestLedger_BurnUnburnRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	p := econ.Default()
	a := addUser(t, l, "a", 10*econ.Coin, true)
	supplyBefore := l.TotalMoney

	require.Equal(t, errcode.OK, l.BurnMoney(a, econ.Coin, testNow))
	acc := l.GetAccount(a)
	assert.Equal(t, 9*econ.Coin-p.TransactionFee, acc.Balance)
	assert.Equal(t, supplyBefore-econ.Coin, l.TotalMoney)
	assert.Equal(t, l.TotalMoney, totalSupply(l))

	require.Equal(t, errcode.OK, l.UnburnMoney(a, econ.Coin, testNow))
	assert.Equal(t, int64(10*econ.Coin), acc.Balance)
	assert.Equal(t, supplyBefore, l.TotalMoney)
	assert.Equal(t, int64(0), l.InternalBalance(ServerAccountID))
}

func TestLedger_BurnMoneyErrors(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 100, false)

	assert.Equal(t, errcode.NotFound, l.BurnMoney(99, 10, testNow))
	assert.Equal(t, errcode.InvalidAmount, l.BurnMoney(a, 0, testNow))
	assert.Equal(t, errcode.InsufficientFunds, l.BurnMoney(a, 100, testNow))
	assert.Equal(t, int64(100), l.GetAccount(a).Balance)
}

func TestLedger_SetAnchorStatus(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 0, false)

	require.Equal(t, errcode.OK, l.SetAnchorStatus(a, true))
	assert.True(t, l.GetAccount(a).IsTrusted())
	assert.Equal(t, int32(1), l.TotalTrusted)

	assert.Equal(t, errcode.NothingToDo, l.SetAnchorStatus(a, true))

	require.Equal(t, errcode.OK, l.SetAnchorStatus(a, false))
	assert.False(t, l.GetAccount(a).IsTrusted())
	assert.Equal(t, int32(0), l.TotalTrusted)

	assert.Equal(t, errcode.NotFound, l.SetAnchorStatus(99, true))
}

func TestLedger_EditPersonalInfoTrimsAndChargesBestEffort(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 4, false)

	code := l.EditPersonalInfo(a, "  New Name  ", []string{" line ", "", "two"}, testNow)
	require.Equal(t, errcode.OK, code)

	acc := l.GetAccount(a)
	assert.Equal(t, "New Name", acc.Name)
	assert.Equal(t, []string{"line", "two"}, acc.Profile)
	// the fee is best effort: everything the account had, not the full fee
	assert.Equal(t, int64(0), acc.Balance)
	assert.Equal(t, int64(4), l.InternalBalance(ServerAccountID))
}

func TestLedger_TouchLoginTimestamp(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 0, false)

	later := testNow + 500
	l.TouchLoginTimestamp(a, later)
	assert.Equal(t, later, l.GetAccount(a).LastLogin)

	l.TouchLoginTimestamp(99, later) // missing account is a no-op
}

func TestLedger_CountTxBuckets(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "a", 1000, false)
	b := addUser(t, l, "b", 1000, false)

	l.SendMoney(a, b, 1, false, false, testNow)
	l.SendMoney(a, b, 1, false, false, testNow+60)

	assert.Equal(t, int64(4), l.TotalTx) // two creates, two sends
	assert.Equal(t, int64(3), l.TxPerHour[0])
	assert.Equal(t, int64(1), l.TxPerHour[1])

	stats := l.GetStats()
	assert.Equal(t, int64(4), stats.TotalTx)
	assert.Equal(t, 2, stats.UserCount)
}

func TestLedger_GetUserNames(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "alice", 0, false)
	b := addUser(t, l, "bob", 0, false)

	names := l.GetUserNames([]int32{a, b, 99})
	assert.Equal(t, map[int32]string{a: "alice", b: "bob"}, names)
}

func TestAccount_CloneIsIndependent(t *testing.T) {
	l := newTestLedger(t)
	a := addUser(t, l, "alice", 10*econ.Coin, false)
	b := addUser(t, l, "bob", 10*econ.Coin, false)
	l.AddValidation(a, b, testNow)

	acc := l.GetAccount(a)
	require.NotNil(t, acc)
	clone := acc.Clone()
	links := len(clone.ValidationOut)
	logs := len(clone.Log)
	profile := append([]string(nil), clone.Profile...)

	l.RemoveValidation(a, b, true, true, testNow)
	l.SendMoney(a, b, econ.Coin, false, false, testNow)
	l.EditPersonalInfo(a, "alicia", []string{"moved"}, testNow)

	assert.Len(t, clone.ValidationOut, links)
	assert.Len(t, clone.Log, logs)
	assert.Equal(t, "alice", clone.Name)
	assert.Equal(t, profile, clone.Profile)
	assert.True(t, clone.ValidationOut.Has(b))
	assert.False(t, acc.ValidationOut.Has(b))
}
