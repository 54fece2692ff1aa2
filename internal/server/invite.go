package server

import (
	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/errcode"
	"github.com/basisd/basis/internal/ledger"
)

// CreateInvite locks the configured gift amount of the caller's
// balance and returns a fresh invitation code, or a negative error
// code. Every invite currently uses the server-set minimum amount.
func (s *Server) CreateInvite(sessionID int64) (int64, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return int64(userID), err
	}
	amount := s.params.MinInviteAmount

	// Cap live invites per sponsor before locking anything.
	var count int
	var countCode errcode.Code
	s.secEx.View(func() { count, countCode = s.sec.PendingInviteCount(userID) })
	if countCode.IsError() {
		return int64(countCode), nil
	}
	if count >= s.params.MaxPendingInvites {
		return int64(errcode.LimitReached), nil
	}

	res, err := s.execLedger(ledger.Command{
		Op:     ledger.OpCreateInvite,
		Now:    s.now(),
		UserID: userID,
		Amount: amount,
	})
	if err != nil {
		return 0, err
	}
	if res.Code != errcode.OK {
		return int64(res.Code), nil
	}

	code, err := s.filePendingInvite(userID, amount)
	if err != nil {
		return 0, err
	}
	if code < 0 {
		// The credential insert refused the invite, so undo the lock.
		if _, err := s.execLedger(ledger.Command{
			Op:    ledger.OpReleaseLocks,
			Now:   s.now(),
			Locks: []ledger.InviteLock{{SponsorID: userID, Amount: amount}},
		}); err != nil {
			return 0, err
		}
	}
	return code, nil
}

// filePendingInvite inserts the invite under a random code, retrying
// on the rare collision. A negative return means the store refused it.
func (s *Server) filePendingInvite(sponsorID int32, amount int64) (int64, error) {
	for {
		code, err := randomCode()
		if err != nil {
			return 0, err
		}
		res, err := s.execCred(cred.Command{
			Op:        cred.OpCreateInvite,
			Now:       s.now(),
			Code:      code,
			SponsorID: sponsorID,
			Amount:    amount,
		})
		if err != nil {
			return 0, err
		}
		if res.Value == 1 {
			return code, nil
		}
		// Either a code collision (retry) or a dangling sponsor (give
		// up; the store logged it).
		var exists bool
		s.secEx.View(func() { exists = s.sec.GetInvite(code) != nil })
		if !exists {
			return int64(errcode.Failed), nil
		}
	}
}

// CheckInvite reports the sponsor of an invitation code for the signup
// form, extending a nearly-expired invite by a day.
func (s *Server) CheckInvite(code int64) (int32, error) {
	res, err := s.execCred(cred.Command{Op: cred.OpTouchInvite, Now: s.now(), Code: code})
	if err != nil {
		return 0, err
	}
	if res.Code.IsError() {
		return int32(res.Code), nil
	}
	return int32(res.Value), nil
}

// AcceptInvite redeems an invitation code into a full account: creates
// both account halves, destroys the code, and moves the sponsor's
// locked gift to the new user. A server invite (no sponsor) instead
// mints the gift directly and the account is born an anchor.
//
// After the account exists, funding is best effort; if the locked
// transfer comes up short the account stays, funded with whatever was
// available.
func (s *Server) AcceptInvite(code int64, email string, passwordHash []byte,
	name string, profile []string) (int32, error) {

	var invite *cred.PendingInvite
	s.secEx.View(func() {
		if p := s.sec.GetInvite(code); p != nil {
			copied := *p
			invite = &copied
		}
	})
	if invite == nil {
		return int32(errcode.NotFound), nil
	}

	serverInvite := invite.SponsorID < 0
	var startBalance int64
	if serverInvite {
		startBalance = invite.Amount
	}

	newUserID, err := s.createUser(name, profile, email, passwordHash,
		invite.SponsorID, startBalance, serverInvite)
	if err != nil || newUserID < 0 {
		return newUserID, err
	}

	if _, err := s.execCred(cred.Command{Op: cred.OpDeleteInvite, Now: s.now(), Code: code}); err != nil {
		return 0, err
	}

	if !serverInvite {
		if _, err := s.execLedger(ledger.Command{
			Op:      ledger.OpSendMoney,
			Now:     s.now(),
			UserID:  invite.SponsorID,
			OtherID: newUserID,
			Amount:  invite.Amount,
			Locked:  true,
		}); err != nil {
			return 0, err
		}
	}
	return newUserID, nil
}

// CancelInvite releases the sponsor's locked funds and destroys the
// code, with no transfer.
func (s *Server) CancelInvite(code int64) (errcode.Code, error) {
	var invite *cred.PendingInvite
	s.secEx.View(func() {
		if p := s.sec.GetInvite(code); p != nil {
			copied := *p
			invite = &copied
		}
	})
	if invite == nil {
		return errcode.NotFound, nil
	}

	// Unlock first, then destroy the code; the lock release is the part
	// money consistency depends on.
	if invite.SponsorID >= 0 {
		if _, err := s.execLedger(ledger.Command{
			Op:    ledger.OpReleaseLocks,
			Now:   s.now(),
			Locks: []ledger.InviteLock{{SponsorID: invite.SponsorID, Amount: invite.Amount}},
		}); err != nil {
			return 0, err
		}
	}
	if _, err := s.execCred(cred.Command{Op: cred.OpDeleteInvite, Now: s.now(), Code: code}); err != nil {
		return 0, err
	}
	return errcode.OK, nil
}

// InviteAnchor is the administrative bootstrap: a server-sponsored
// invite whose acceptor is created permanently trusted with newly
// minted money. Used to seed the economy with its first accounts.
func (s *Server) InviteAnchor(amount int64) (int64, error) {
	if amount <= 0 {
		amount = s.params.MinInviteAmount
	}
	return s.filePendingInvite(ledger.NoSponsor, amount)
}
