package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// Op names one ledger command variant. The name is stored with every
// journal row, so these are wire-frozen.
type Op string

const (
	OpCreateUser       Op = "create_user"
	OpDeleteUser       Op = "delete_user"
	OpSendMoney        Op = "send_money"
	OpCreateInvite     Op = "create_invite"
	OpReleaseLocks     Op = "release_locks"
	OpAddValidation    Op = "add_validation"
	OpRemoveValidation Op = "remove_validation"
	OpRequestTrust     Op = "request_trust"
	OpChallengeTrust   Op = "challenge_trust"
	OpVoteTrust        Op = "vote_trust"
	OpBurnMoney        Op = "burn_money"
	OpUnburnMoney      Op = "unburn_money"
	OpSetAnchor        Op = "set_anchor"
	OpEditInfo         Op = "edit_info"
	OpTouchLogin       Op = "touch_login"
	OpTick             Op = "tick"
)

// Command is one replayable ledger mutation. It is a flat tagged
// struct: Op selects the variant, Now is the embedded timestamp every
// variant uses instead of the wall clock, and the remaining fields are
// read only by the variants that need them.
type Command struct {
	Op  Op            `json:"op"`
	Now epoch.Minutes `json:"now"`

	UserID  int32 `json:"user,omitempty"`
	OtherID int32 `json:"other,omitempty"`
	Amount  int64 `json:"amount,omitempty"`

	Exact  bool `json:"exact,omitempty"`
	Locked bool `json:"locked,omitempty"`

	Vote     bool `json:"vote,omitempty"`
	Inbound  bool `json:"inbound,omitempty"`
	Outbound bool `json:"outbound,omitempty"`
	Anchor   bool `json:"anchor,omitempty"`

	// create_user inputs. StartBalance is nonzero only on the
	// anchor-invite path, where the server mints the gift directly.
	Name         string   `json:"name,omitempty"`
	Profile      []string `json:"profile,omitempty"`
	SponsorID    int32    `json:"sponsor,omitempty"`
	StartBalance int64    `json:"startBalance,omitempty"`

	// release_locks inputs.
	Locks []InviteLock `json:"locks,omitempty"`
}

// Encode serializes the command into its journal payload.
func (c Command) Encode() ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Op, err)
	}
	return payload, nil
}

// Result of applying one command. Value carries the non-negative
// payload of operations that return one (the new user ID, the amount
// actually sent); Code carries the business outcome; Deleted is only
// set by tick.
type Result struct {
	Value   int64
	Code    errcode.Code
	Deleted []int32
}

// Apply decodes a journal payload and dispatches it against the
// ledger. A decode failure or unknown op is an engine-fatal error, not
// a business code: the journal holds something this build cannot
// reproduce, and continuing would fork the state.
func (l *Ledger) Apply(payload []byte) (Result, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Result{}, fmt.Errorf("decode ledger command: %w", err)
	}

	switch c.Op {
	case OpCreateUser:
		acc := NewAccount(c.Name, c.Profile, c.Now)
		acc.Balance = c.StartBalance
		if c.Anchor {
			acc.setAnchor()
		}
		id, code := l.CreateUser(acc, c.SponsorID, c.Now)
		return Result{Value: int64(id), Code: code}, nil

	case OpDeleteUser:
		return Result{Code: l.DeleteUser(c.UserID, c.Now)}, nil

	case OpSendMoney:
		sent, code := l.SendMoney(c.UserID, c.OtherID, c.Amount, c.Exact, c.Locked, c.Now)
		return Result{Value: sent, Code: code}, nil

	case OpCreateInvite:
		return Result{Code: l.CreateInvite(c.UserID, c.Amount, c.Now)}, nil

	case OpReleaseLocks:
		l.ReleaseInviteLocks(c.Locks, c.Now)
		return Result{Code: errcode.OK}, nil

	case OpAddValidation:
		return Result{Code: l.AddValidation(c.UserID, c.OtherID, c.Now)}, nil

	case OpRemoveValidation:
		return Result{Code: l.RemoveValidation(c.UserID, c.OtherID, c.Inbound, c.Outbound, c.Now)}, nil

	case OpRequestTrust:
		return Result{Code: l.RequestTrust(c.UserID, c.Now)}, nil

	case OpChallengeTrust:
		return Result{Code: l.ChallengeTrust(c.UserID, c.OtherID, c.Now)}, nil

	case OpVoteTrust:
		return Result{Code: l.VoteTrust(c.UserID, c.Vote, c.Now)}, nil

	case OpBurnMoney:
		return Result{Code: l.BurnMoney(c.UserID, c.Amount, c.Now)}, nil

	case OpUnburnMoney:
		return Result{Code: l.UnburnMoney(c.UserID, c.Amount, c.Now)}, nil

	case OpSetAnchor:
		return Result{Code: l.SetAnchorStatus(c.UserID, c.Anchor)}, nil

	case OpEditInfo:
		return Result{Code: l.EditPersonalInfo(c.UserID, c.Name, c.Profile, c.Now)}, nil

	case OpTouchLogin:
		l.TouchLoginTimestamp(c.UserID, c.Now)
		return Result{Code: errcode.OK}, nil

	case OpTick:
		return Result{Code: errcode.OK, Deleted: l.Tick(c.Now)}, nil
	}
	return Result{}, fmt.Errorf("unknown ledger op %q", c.Op)
}

// Snapshot serializes the full ledger state.
func (l *Ledger) Snapshot() ([]byte, error) {
	state, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("snapshot ledger: %w", err)
	}
	return state, nil
}

// Restore replaces the ledger state with a snapshot, keeping the
// process configuration attached by SetRuntime.
func (l *Ledger) Restore(snapshot []byte) error {
	var s Ledger
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return fmt.Errorf("restore ledger snapshot: %w", err)
	}
	s.params, s.log = l.params, l.log
	if s.Accounts == nil {
		s.Accounts = map[int32]*Account{}
	}
	if s.Internal == nil {
		s.Internal = map[int32]int64{}
	}
	if s.Elections == nil {
		s.Elections = map[int32]*Election{}
	}
	if s.TxPerHour == nil {
		s.TxPerHour = map[int8]int64{}
	}
	*l = s
	return nil
}
