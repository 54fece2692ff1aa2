package cred

import (
	"encoding/json"
	"fmt"

	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// Op names one credential-store command variant.
type Op string

const (
	OpCreateUser     Op = "create_user"
	OpDeleteUser     Op = "delete_user"
	OpBindEmail      Op = "bind_email"
	OpSetPassword    Op = "set_password"
	OpSetResetCode   Op = "set_reset_code"
	OpResetPassword  Op = "reset_password"
	OpLogin          Op = "login"
	OpLogout         Op = "logout"
	OpTouchSession   Op = "touch_session"
	OpCreateInvite   Op = "create_invite"
	OpTouchInvite    Op = "touch_invite"
	OpDeleteInvite   Op = "delete_invite"
	OpCollectGarbage Op = "collect_garbage"
	OpSetMasterKey   Op = "set_master_key"
	OpBurnReceipt    Op = "burn_receipt"
)

// Command is one replayable credential-store mutation, a flat tagged
// struct like the ledger's.
type Command struct {
	Op  Op            `json:"op"`
	Now epoch.Minutes `json:"now"`

	UserID int32  `json:"user,omitempty"`
	Email  string `json:"email,omitempty"`

	// Caller-generated random code: session ID, invite code, or
	// password reset code depending on the op.
	Code int64 `json:"code,omitempty"`

	PasswordHash []byte `json:"password,omitempty"`

	// create_invite inputs.
	SponsorID int32 `json:"sponsor,omitempty"`
	Amount    int64 `json:"amount,omitempty"`

	// burn_receipt inputs.
	Comment []byte `json:"comment,omitempty"`

	// set_master_key inputs.
	Key []byte `json:"key,omitempty"`

	// collect_garbage inputs.
	DeletedUsers []int32 `json:"deletedUsers,omitempty"`
}

// Encode serializes the command into its journal payload.
func (c Command) Encode() ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Op, err)
	}
	return payload, nil
}

// Result of applying one credential command. Value carries resolved
// user IDs and booleans (1/0); Receipt and Expired are set only by the
// ops that produce them.
type Result struct {
	Value   int64
	Code    errcode.Code
	Receipt []byte
	Expired []PendingInvite
}

// Apply decodes a journal payload and dispatches it. Unknown ops and
// decode failures are engine-fatal.
func (s *Store) Apply(payload []byte) (Result, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Result{}, fmt.Errorf("decode credential command: %w", err)
	}

	switch c.Op {
	case OpCreateUser:
		s.CreateUser(c.UserID, c.Email, c.PasswordHash)
		return Result{Code: errcode.OK}, nil

	case OpDeleteUser:
		s.DeleteUser(c.UserID)
		return Result{Code: errcode.OK}, nil

	case OpBindEmail:
		s.BindEmail(c.UserID, c.Email)
		return Result{Code: errcode.OK}, nil

	case OpSetPassword:
		return Result{Code: s.SetPassword(c.UserID, c.PasswordHash)}, nil

	case OpSetResetCode:
		return Result{Code: s.SetResetCode(c.UserID, c.Email, c.Code, c.Now)}, nil

	case OpResetPassword:
		return Result{Code: s.ResetPassword(c.PasswordHash, c.Code)}, nil

	case OpLogin:
		if s.Login(c.UserID, c.Code, c.Now) {
			return Result{Value: 1, Code: errcode.OK}, nil
		}
		return Result{Code: errcode.Failed}, nil

	case OpLogout:
		s.Logout(c.Code)
		return Result{Code: errcode.OK}, nil

	case OpTouchSession:
		userID, code := s.TouchSession(c.Code, c.Now)
		return Result{Value: int64(userID), Code: code}, nil

	case OpCreateInvite:
		invite := &PendingInvite{
			SponsorID: c.SponsorID,
			Amount:    c.Amount,
			Expires:   c.Now + epoch.Minutes(s.params.InviteTimeoutMinutes),
		}
		if s.CreateInvite(c.Code, invite) {
			return Result{Value: 1, Code: errcode.OK}, nil
		}
		return Result{Code: errcode.Failed}, nil

	case OpTouchInvite:
		sponsorID, code := s.CheckInvite(c.Code, c.Now)
		return Result{Value: int64(sponsorID), Code: code}, nil

	case OpDeleteInvite:
		s.DeleteInvite(c.Code)
		return Result{Code: errcode.OK}, nil

	case OpCollectGarbage:
		expired := s.CollectGarbage(c.DeletedUsers, c.Now)
		return Result{Code: errcode.OK, Expired: expired}, nil

	case OpSetMasterKey:
		s.SetMasterKey(c.Key)
		return Result{Code: errcode.OK}, nil

	case OpBurnReceipt:
		receipt := s.CreateBurnReceipt(c.UserID, c.Amount, c.Comment, c.Now)
		if receipt == nil {
			return Result{Code: errcode.Failed}, nil
		}
		return Result{Code: errcode.OK, Receipt: receipt}, nil
	}
	return Result{}, fmt.Errorf("unknown credential op %q", c.Op)
}

// Snapshot serializes the full store state.
func (s *Store) Snapshot() ([]byte, error) {
	state, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot credential store: %w", err)
	}
	return state, nil
}

// Restore replaces the store state with a snapshot, keeping the
// process configuration attached by SetRuntime.
func (s *Store) Restore(snapshot []byte) error {
	var r Store
	if err := json.Unmarshal(snapshot, &r); err != nil {
		return fmt.Errorf("restore credential snapshot: %w", err)
	}
	r.params, r.log = s.params, s.log
	if r.EmailToUser == nil {
		r.EmailToUser = map[string]int32{}
	}
	if r.Invites == nil {
		r.Invites = map[int64]*PendingInvite{}
	}
	if r.Sessions == nil {
		r.Sessions = map[int64]*Session{}
	}
	if r.Accounts == nil {
		r.Accounts = map[int32]*PrivateAccount{}
	}
	if r.ResetCodes == nil {
		r.ResetCodes = map[int64]int32{}
	}
	*s = r
	return nil
}
