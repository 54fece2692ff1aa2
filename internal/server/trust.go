package server

import (
	"github.com/basisd/basis/internal/errcode"
	"github.com/basisd/basis/internal/ledger"
)

// AddValidation adds a directed real-world-identity link from the
// caller to another user.
func (s *Server) AddValidation(sessionID int64, linkUserID int32) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}
	res, err := s.execLedger(ledger.Command{
		Op:      ledger.OpAddValidation,
		Now:     s.now(),
		UserID:  userID,
		OtherID: linkUserID,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// RemoveValidation drops the selected directions of a link.
func (s *Server) RemoveValidation(sessionID int64, linkUserID int32, inbound, outbound bool) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}
	res, err := s.execLedger(ledger.Command{
		Op:       ledger.OpRemoveValidation,
		Now:      s.now(),
		UserID:   userID,
		OtherID:  linkUserID,
		Inbound:  inbound,
		Outbound: outbound,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// ValidationCheck reports the link state between the caller and a peer.
type ValidationCheck struct {
	Inbound  bool
	Outbound bool
}

// CheckValidation is a read of the caller's link state with a peer.
func (s *Server) CheckValidation(sessionID int64, linkUserID int32) (*ValidationCheck, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return nil, err
	}
	if userID == linkUserID {
		return nil, nil
	}
	var check *ValidationCheck
	s.dmEx.View(func() {
		acc := s.dm.GetAccount(userID)
		if acc == nil || s.dm.GetAccount(linkUserID) == nil {
			return
		}
		check = &ValidationCheck{
			Inbound:  acc.ValidationIn.Has(linkUserID),
			Outbound: acc.ValidationOut.Has(linkUserID),
		}
	})
	return check, nil
}

// RequestTrust starts the caller's own trust election.
func (s *Server) RequestTrust(sessionID int64) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}
	res, err := s.execLedger(ledger.Command{Op: ledger.OpRequestTrust, Now: s.now(), UserID: userID})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// ChallengeTrust starts an election to strip another user's trust.
func (s *Server) ChallengeTrust(sessionID int64, targetUserID int32) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}
	res, err := s.execLedger(ledger.Command{
		Op:      ledger.OpChallengeTrust,
		Now:     s.now(),
		UserID:  userID,
		OtherID: targetUserID,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// VoteTrust casts the caller's ballot in the election they owe a vote
// to and pays out the voting reward.
func (s *Server) VoteTrust(sessionID int64, vote bool) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}
	res, err := s.execLedger(ledger.Command{
		Op:     ledger.OpVoteTrust,
		Now:    s.now(),
		UserID: userID,
		Vote:   vote,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}
