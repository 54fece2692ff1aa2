package cred

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"

	"github.com/basisd/basis/internal/epoch"
)

// Burn receipt wire format, version 1:
//
//	message  = version(1) | pubkey(32) | receiptID(8) | amount(8) | timestamp(4) | comment
//	receipt  = signature(64) | message
//
// Integers are big-endian. External verifiers check the signature over
// the message and should also reject receipts with timestamps far in
// the past or future.
const (
	ReceiptVersion    = 1
	receiptHeaderLen  = 1 + ed25519.PublicKeySize + 8 + 8 + 4
	receiptPrefixLen  = ed25519.SignatureSize + receiptHeaderLen
)

// SetMasterKey installs the ed25519 private key that signs burn
// receipts. Key changes are journaled commands like everything else,
// so replayed receipts re-sign with the key that was live at the time.
func (s *Store) SetMasterKey(privateKey []byte) {
	s.MasterKey = privateKey
}

// HasMasterKey reports whether a signing key is configured.
func (s *Store) HasMasterKey() bool {
	return len(s.MasterKey) == ed25519.PrivateKeySize
}

// MasterPublicKeyHex returns the verifying key as hex, or "" when no
// key is configured.
func (s *Store) MasterPublicKeyHex() string {
	if !s.HasMasterKey() {
		return ""
	}
	pub := ed25519.PrivateKey(s.MasterKey).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

// CreateBurnReceipt signs a receipt for a burn the ledger has already
// applied and stores it as the user's current receipt. Ed25519 signing
// is deterministic, so a replay reproduces the identical receipt. A
// nil return tells the caller to roll the burn back.
func (s *Store) CreateBurnReceipt(userID int32, amount int64, comment []byte, now epoch.Minutes) []byte {
	if !s.HasMasterKey() {
		return nil
	}
	if len(comment) > s.params.MaxBurnCommentBytes {
		return nil
	}
	acc := s.Accounts[userID]
	if acc == nil {
		return nil
	}

	priv := ed25519.PrivateKey(s.MasterKey)
	pub := priv.Public().(ed25519.PublicKey)

	s.ReceiptIDGen++
	message := make([]byte, 0, receiptHeaderLen+len(comment))
	message = append(message, ReceiptVersion)
	message = append(message, pub...)
	message = binary.BigEndian.AppendUint64(message, uint64(s.ReceiptIDGen))
	message = binary.BigEndian.AppendUint64(message, uint64(amount))
	message = binary.BigEndian.AppendUint32(message, uint32(now))
	message = append(message, comment...)

	signature := ed25519.Sign(priv, message)

	receipt := make([]byte, 0, receiptPrefixLen+len(comment))
	receipt = append(receipt, signature...)
	receipt = append(receipt, message...)
	acc.BurnReceipt = receipt
	return receipt
}

// VerifyBurnReceipt checks a receipt's signature against its embedded
// public key and returns the signed fields.
func VerifyBurnReceipt(receipt []byte) (amount int64, ts epoch.Minutes, comment []byte, ok bool) {
	if len(receipt) < receiptPrefixLen || receipt[ed25519.SignatureSize] != ReceiptVersion {
		return 0, 0, nil, false
	}
	signature := receipt[:ed25519.SignatureSize]
	message := receipt[ed25519.SignatureSize:]
	pub := ed25519.PublicKey(message[1 : 1+ed25519.PublicKeySize])
	if !ed25519.Verify(pub, message, signature) {
		return 0, 0, nil, false
	}
	amount = int64(binary.BigEndian.Uint64(message[1+ed25519.PublicKeySize+8:]))
	ts = epoch.Minutes(binary.BigEndian.Uint32(message[1+ed25519.PublicKeySize+16:]))
	comment = message[receiptHeaderLen:]
	return amount, ts, comment, true
}
