package server

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/errcode"
	"github.com/basisd/basis/internal/ledger"
)

// SetAnchorLocal flips an account's anchor flag from the CLI, with no
// session involved.
func (s *Server) SetAnchorLocal(userID int32, anchor bool) (errcode.Code, error) {
	res, err := s.execLedger(ledger.Command{
		Op:     ledger.OpSetAnchor,
		Now:    s.now(),
		UserID: userID,
		Anchor: anchor,
	})
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

// SetAnchor is the remote variant, restricted to super users.
func (s *Server) SetAnchor(sessionID int64, userID int32, anchor bool) (errcode.Code, error) {
	callerID, err := s.touchSession(sessionID)
	if err != nil || callerID < 0 {
		return errcode.Code(callerID), err
	}
	if !s.isSuperUser(callerID) {
		return errcode.Forbidden, nil
	}
	return s.SetAnchorLocal(userID, anchor)
}

// Shutdown requests a graceful stop, restricted to super users.
func (s *Server) Shutdown(sessionID int64) (errcode.Code, error) {
	callerID, err := s.touchSession(sessionID)
	if err != nil || callerID < 0 {
		return errcode.Code(callerID), err
	}
	if !s.isSuperUser(callerID) {
		return errcode.Forbidden, nil
	}
	s.RequestShutdown()
	return errcode.OK, nil
}

// GenerateMasterKey creates and installs a fresh ed25519 signing key,
// replacing any previous one. Returns the new private key so the
// operator can archive it.
func (s *Server) GenerateMasterKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := s.SetMasterKey(priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// SetMasterKey installs an ed25519 private key for burn receipts.
func (s *Server) SetMasterKey(privateKey []byte) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("master key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	_, err := s.execCred(cred.Command{Op: cred.OpSetMasterKey, Now: s.now(), Key: privateKey})
	return err
}

// MasterKey returns the current private key, or nil.
func (s *Server) MasterKey() []byte {
	var key []byte
	s.secEx.View(func() {
		if s.sec.HasMasterKey() {
			key = append(key, s.sec.MasterKey...)
		}
	})
	return key
}

// GetPublicKey returns the receipt-verifying key as hex, or "".
func (s *Server) GetPublicKey() string {
	var pub string
	s.secEx.View(func() { pub = s.sec.MasterPublicKeyHex() })
	return pub
}
