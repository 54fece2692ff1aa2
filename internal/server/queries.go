package server

import (
	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/ledger"
)

// GetUserPublicPage returns a copy-safe view of a public account
// record, or nil.
func (s *Server) GetUserPublicPage(userID int32) *ledger.Account {
	var acc *ledger.Account
	s.dmEx.View(func() {
		if a := s.dm.GetAccount(userID); a != nil {
			acc = a.Clone()
		}
	})
	return acc
}

// GetUserNames maps each existing requested ID to its display name.
func (s *Server) GetUserNames(userIDs []int32) map[int32]string {
	var names map[int32]string
	s.dmEx.View(func() { names = s.dm.GetUserNames(userIDs) })
	return names
}

// GetUserName returns one display name, or "".
func (s *Server) GetUserName(userID int32) string {
	return s.GetUserNames([]int32{userID})[userID]
}

// GetServerStats returns the aggregate counters.
func (s *Server) GetServerStats() ledger.Stats {
	var stats ledger.Stats
	s.dmEx.View(func() { stats = s.dm.GetStats() })
	return stats
}

// SessionInfo is the header strip of a logged-in page.
type SessionInfo struct {
	UserID          int32
	Name            string
	UnlockedBalance int64
}

// GetSessionInfo resolves a session into the header strip data, or nil
// for a dead session.
func (s *Server) GetSessionInfo(sessionID int64) (*SessionInfo, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return nil, err
	}
	var info *SessionInfo
	s.dmEx.View(func() {
		if acc := s.dm.GetAccount(userID); acc != nil {
			info = &SessionInfo{
				UserID:          userID,
				Name:            acc.Name,
				UnlockedBalance: acc.UnlockedBalance(),
			}
		}
	})
	return info, nil
}

// PrivatePage is everything a logged-in user sees about themselves.
type PrivatePage struct {
	UserID  int32
	Account *ledger.Account
	Private *cred.PrivateView
}

// GetUserPrivatePage assembles both halves of the caller's record.
func (s *Server) GetUserPrivatePage(sessionID int64) (*PrivatePage, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return nil, err
	}
	page := &PrivatePage{UserID: userID}
	page.Account = s.GetUserPublicPage(userID)
	s.secEx.View(func() { page.Private = s.sec.GetPrivateAccount(userID) })
	if page.Account == nil {
		return nil, nil
	}
	return page, nil
}
