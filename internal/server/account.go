package server

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/errcode"
	"github.com/basisd/basis/internal/ledger"
)

// createUser creates the public and private halves of a new account.
// The ledger side goes first; if the credential insert then fails the
// process aborts, so the two stores cannot silently drift.
func (s *Server) createUser(name string, profile []string, email string,
	passwordHash []byte, sponsorID int32, startBalance int64, anchor bool) (int32, error) {

	email = strings.TrimSpace(email)
	if email != "" {
		// Refuse duplicate login emails up front.
		var taken bool
		s.secEx.View(func() {
			_, code := s.sec.UserIDByEmail(email)
			taken = code == errcode.OK
		})
		if taken {
			return int32(errcode.AlreadyExists), nil
		}
	}

	// Validate the trimmed public fields the way the ledger will store
	// them.
	probe := ledger.NewAccount(name, profile, s.now())
	if probe.Name == "" {
		return int32(errcode.EmptyName), nil
	}
	if len(probe.Profile) == 0 {
		return int32(errcode.EmptyProfile), nil
	}

	res, err := s.execLedger(ledger.Command{
		Op:           ledger.OpCreateUser,
		Now:          s.now(),
		Name:         name,
		Profile:      profile,
		SponsorID:    sponsorID,
		StartBalance: startBalance,
		Anchor:       anchor,
	})
	if err != nil {
		return 0, err
	}
	if res.Code.IsError() {
		return int32(res.Code), nil
	}
	userID := int32(res.Value)

	if _, err := s.execCred(cred.Command{
		Op:           cred.OpCreateUser,
		Now:          s.now(),
		UserID:       userID,
		Email:        email,
		PasswordHash: passwordHash,
	}); err != nil {
		return 0, err
	}
	return userID, nil
}

// DeleteAccount removes the calling user from both stores. If the
// credential cleanup failed after the ledger delete, the leftover
// private record is tolerated; the daily garbage collection cannot
// resurrect the user.
func (s *Server) DeleteAccount(sessionID int64) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}

	res, err := s.execLedger(ledger.Command{Op: ledger.OpDeleteUser, Now: s.now(), UserID: userID})
	if err != nil {
		return 0, err
	}
	if res.Code != errcode.OK {
		return res.Code, nil
	}
	if _, err := s.execCred(cred.Command{Op: cred.OpDeleteUser, Now: s.now(), UserID: userID}); err != nil {
		return 0, err
	}
	return errcode.OK, nil
}

// EditPersonalInfo updates name, profile, and login email. The email
// rebind is best effort after the ledger edit commits.
func (s *Server) EditPersonalInfo(sessionID int64, name, email string, profile []string) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}

	res, err := s.execLedger(ledger.Command{
		Op:      ledger.OpEditInfo,
		Now:     s.now(),
		UserID:  userID,
		Name:    name,
		Profile: profile,
	})
	if err != nil {
		return 0, err
	}
	if res.Code != errcode.OK {
		return res.Code, nil
	}

	if _, err := s.execCred(cred.Command{
		Op:     cred.OpBindEmail,
		Now:    s.now(),
		UserID: userID,
		Email:  strings.TrimSpace(email),
	}); err != nil {
		return 0, err
	}
	return errcode.OK, nil
}

// Authenticate verifies a password against the stored hash. Pure read;
// nothing is journaled.
func (s *Server) Authenticate(userID int32, password string) bool {
	var hash []byte
	s.secEx.View(func() { hash = s.sec.PasswordHash(userID) })
	if hash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// Login verifies the password and installs a fresh session, evicting
// any previous one. Returns the session ID, or a negative error code.
func (s *Server) Login(userID int32, password string) (int64, error) {
	if !s.Authenticate(userID, password) {
		return int64(errcode.Failed), nil
	}

	for {
		sessionID, err := randomCode()
		if err != nil {
			return 0, err
		}
		res, err := s.execCred(cred.Command{
			Op:     cred.OpLogin,
			Now:    s.now(),
			UserID: userID,
			Code:   sessionID,
		})
		if err != nil {
			return 0, err
		}
		if res.Value == 1 {
			// Logging in is what keeps the account active.
			if _, err := s.execLedger(ledger.Command{
				Op:     ledger.OpTouchLogin,
				Now:    s.now(),
				UserID: userID,
			}); err != nil {
				return 0, err
			}
			return sessionID, nil
		}
		// Code collision; draw again.
	}
}

// Logout destroys the session.
func (s *Server) Logout(sessionID int64) error {
	_, err := s.execCred(cred.Command{Op: cred.OpLogout, Now: s.now(), Code: sessionID})
	return err
}

// ChangePassword replaces the caller's password hash.
func (s *Server) ChangePassword(sessionID int64, newPasswordHash []byte) (errcode.Code, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return errcode.Code(userID), err
	}
	res, err := s.execCred(cred.Command{
		Op:           cred.OpSetPassword,
		Now:          s.now(),
		UserID:       userID,
		PasswordHash: newPasswordHash,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// GetPasswordResetCode generates and files a reset code after checking
// the email belongs to the user. Returns the code, or a negative error
// code. Delivering it by email is the web layer's problem.
func (s *Server) GetPasswordResetCode(userID int32, email string) (int64, error) {
	code, err := randomCode()
	if err != nil {
		return 0, err
	}
	res, err := s.execCred(cred.Command{
		Op:     cred.OpSetResetCode,
		Now:    s.now(),
		UserID: userID,
		Email:  email,
		Code:   code,
	})
	if err != nil {
		return 0, err
	}
	if res.Code != errcode.OK {
		return int64(res.Code), nil
	}
	return code, nil
}

// ResetPassword consumes a reset code and installs the new hash.
func (s *Server) ResetPassword(newPasswordHash []byte, code int64) (errcode.Code, error) {
	res, err := s.execCred(cred.Command{
		Op:           cred.OpResetPassword,
		Now:          s.now(),
		PasswordHash: newPasswordHash,
		Code:         code,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// GetUserID resolves a login email, or NotFound as a negative value.
func (s *Server) GetUserID(email string) int32 {
	var id int32
	s.secEx.View(func() {
		uid, code := s.sec.UserIDByEmail(email)
		if code.IsError() {
			id = int32(code)
		} else {
			id = uid
		}
	})
	return id
}
