package ledger

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/basisd/basis/internal/epoch"
)

// Account flag bits. Anchor overrides Authentic in every trust check.
const (
	FlagAuthentic uint16 = 1 << 0
	FlagAnchor    uint16 = 1 << 1
)

// Bounds on user-supplied account fields. Excess is trimmed, not rejected.
const (
	NameMaxLen        = 256
	ProfileMaxBytes   = 2048
	ProfileMaxLines   = 15
	AccountLogMaxSize = 30
)

// LogCode identifies one kind of ledger event in an account's recent log.
type LogCode int16

const (
	LogUBI                  LogCode = 1
	LogDemurrage            LogCode = 2
	LogMaintenanceFee       LogCode = 3
	LogInviteFundsLocked    LogCode = 4
	LogInviteFundsUnlocked  LogCode = 5
	LogTrustRequestFee      LogCode = 6
	LogTrustVoteReward      LogCode = 7
	LogTrustRequestApproved LogCode = 8
	LogTrustRequestRejected LogCode = 9
	LogInactivityCharge     LogCode = 10
	LogChallengeFee         LogCode = 11
	LogChallengeApproved    LogCode = 12
	LogChallengeRejected    LogCode = 13
	LogBurn                 LogCode = 14
	LogUnburn               LogCode = 15

	LogSendMoney            LogCode = 32
	LogReceiveMoney         LogCode = 33
	LogInviteFundsSent      LogCode = 34
	LogInviteMoneyReceived  LogCode = 35

	LogFeeEditInfo       LogCode = 64
	LogFeeValidation     LogCode = 65
	LogFeeCreateInvite   LogCode = 66
	LogFeeSendMoney      LogCode = 67
	LogFeeBurn           LogCode = 68
	LogRefundFeeBurn     LogCode = 69
)

// LogEntry is one event in an account's bounded recent-activity log.
// Peer is the other account involved, or -1 when none.
type LogEntry struct {
	Timestamp epoch.Minutes `json:"ts"`
	Code      LogCode       `json:"code"`
	Amount    int64         `json:"amount"`
	Peer      int32         `json:"peer"`
}

// IDSet is a set of account IDs. It marshals as a JSON object so
// snapshots stay stable regardless of insertion order.
type IDSet map[int32]bool

func (s IDSet) Add(id int32)      { s[id] = true }
func (s IDSet) Remove(id int32)   { delete(s, id) }
func (s IDSet) Has(id int32) bool { return s[id] }

// Clone returns an independent copy of the set.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = true
	}
	return c
}

// Account is the public ledger record of one user.
type Account struct {
	Name    string   `json:"name"`
	Profile []string `json:"profile,omitempty"`

	// Validation links are the social graph: ValidationOut holds the
	// peers this user vouches for, ValidationIn the back-pointers.
	ValidationOut IDSet `json:"vout"`
	ValidationIn  IDSet `json:"vin"`

	// Recent ledger events, oldest evicted first.
	Log []LogEntry `json:"log,omitempty"`

	// AuthOtherID is the target of an election this user owes a vote to,
	// or -1. AuthSelfID is who requested the election this user is the
	// subject of (their own ID for a self-request), or -1.
	AuthOtherID int32 `json:"authOther"`
	AuthSelfID  int32 `json:"authSelf"`

	Created          epoch.Minutes `json:"created"`
	LastLogin        epoch.Minutes `json:"lastLogin"`
	LastVerification epoch.Minutes `json:"lastVerification"`

	// Balance in fixed-point units. MinBalance is the slice of it locked
	// by outstanding invites and unavailable for spending.
	Balance    int64 `json:"balance"`
	MinBalance int64 `json:"minBalance"`

	Flags uint16 `json:"flags"`
}

// NewAccount returns a blank, untrusted account not yet in any ledger.
func NewAccount(name string, profile []string, now epoch.Minutes) *Account {
	a := &Account{
		Name:          name,
		Profile:       profile,
		ValidationOut: IDSet{},
		ValidationIn:  IDSet{},
		AuthOtherID:   -1,
		AuthSelfID:    -1,
		Created:       now,
		LastLogin:     now,
	}
	a.Trim()
	return a
}

// Clone returns a copy safe to hand to the web layer: the maps and
// slices no longer alias the live record.
func (a *Account) Clone() *Account {
	c := *a
	c.ValidationOut = a.ValidationOut.Clone()
	c.ValidationIn = a.ValidationIn.Clone()
	c.Profile = append([]string(nil), a.Profile...)
	c.Log = append([]LogEntry(nil), a.Log...)
	return &c
}

func (a *Account) IsAuthentic() bool { return a.Flags&FlagAuthentic != 0 }
func (a *Account) IsAnchor() bool    { return a.Flags&FlagAnchor != 0 }

// IsTrusted reports whether the account passes any trust check.
func (a *Account) IsTrusted() bool { return a.Flags&(FlagAuthentic|FlagAnchor) != 0 }

func (a *Account) setAuthentic()   { a.Flags |= FlagAuthentic }
func (a *Account) clearAuthentic() { a.Flags &^= FlagAuthentic }
func (a *Account) setAnchor()      { a.Flags |= FlagAnchor }
func (a *Account) clearAnchor()    { a.Flags &^= FlagAnchor }

// UnlockedBalance is the spendable part of the balance, never negative.
func (a *Account) UnlockedBalance() int64 {
	unlocked := a.Balance - a.MinBalance
	if unlocked < 0 {
		return 0
	}
	return unlocked
}

// ValidationLinkCount counts the unique peers across both link sets.
func (a *Account) ValidationLinkCount() int {
	n := len(a.ValidationOut)
	for id := range a.ValidationIn {
		if !a.ValidationOut.Has(id) {
			n++
		}
	}
	return n
}

// Trim normalizes and bounds the user-supplied name and profile.
func (a *Account) Trim() {
	a.Name = norm.NFC.String(strings.TrimSpace(a.Name))
	if len(a.Name) > NameMaxLen {
		a.Name = a.Name[:NameMaxLen]
	}
	a.Profile = TrimProfile(a.Profile)
}

// TrimProfile drops blank lines, trims each remaining line, and cuts the
// profile off once either the byte or the line budget is spent.
func TrimProfile(profile []string) []string {
	var out []string
	size := 0
	for _, line := range profile {
		line = norm.NFC.String(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		out = append(out, line)
		size += len(line)
		if size > ProfileMaxBytes || len(out) > ProfileMaxLines {
			break
		}
	}
	return out
}

// appendLog records an event, evicting the oldest entries past capacity.
func (a *Account) appendLog(e LogEntry) {
	for len(a.Log) > AccountLogMaxSize-1 {
		a.Log = a.Log[1:]
	}
	a.Log = append(a.Log, e)
}
