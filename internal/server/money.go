package server

import (
	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/errcode"
	"github.com/basisd/basis/internal/ledger"
)

// SendMoney transfers amount to another user, charging the flat fee.
// Returns the amount actually sent, or a negative error code.
func (s *Server) SendMoney(sessionID int64, toUserID int32, amount int64, exact bool) (int64, error) {
	fromUserID, err := s.touchSession(sessionID)
	if err != nil || fromUserID < 0 {
		return int64(fromUserID), err
	}
	if amount <= 0 {
		return int64(errcode.InvalidAmount), nil
	}

	res, err := s.execLedger(ledger.Command{
		Op:      ledger.OpSendMoney,
		Now:     s.now(),
		UserID:  fromUserID,
		OtherID: toUserID,
		Amount:  amount,
		Exact:   exact,
	})
	if err != nil {
		return 0, err
	}
	if res.Code.IsError() {
		return int64(res.Code), nil
	}
	return res.Value, nil
}

// BurnMoney destroys amount of the caller's balance and returns the
// signed receipt proving it. If the receipt cannot be produced the
// burn is rolled back with its exact inverse and nil is returned.
func (s *Server) BurnMoney(sessionID int64, amount int64, comment []byte) ([]byte, error) {
	userID, err := s.touchSession(sessionID)
	if err != nil || userID < 0 {
		return nil, err
	}

	// No point burning anything we cannot sign a receipt for.
	var haveKey bool
	s.secEx.View(func() { haveKey = s.sec.HasMasterKey() })
	if !haveKey {
		return nil, nil
	}

	res, err := s.execLedger(ledger.Command{
		Op:     ledger.OpBurnMoney,
		Now:    s.now(),
		UserID: userID,
		Amount: amount,
	})
	if err != nil {
		return nil, err
	}
	if res.Code != errcode.OK {
		return nil, nil
	}

	rres, err := s.execCred(cred.Command{
		Op:      cred.OpBurnReceipt,
		Now:     s.now(),
		UserID:  userID,
		Amount:  amount,
		Comment: comment,
	})
	if err != nil {
		return nil, err
	}
	if rres.Code != errcode.OK {
		s.log.Warn("burn receipt failed, rolling burn back", "user", userID, "amount", amount)
		if _, err := s.execLedger(ledger.Command{
			Op:     ledger.OpUnburnMoney,
			Now:    s.now(),
			UserID: userID,
			Amount: amount,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rres.Receipt, nil
}
