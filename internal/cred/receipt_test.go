package cred

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisd/basis/internal/econ"
)

func testKey() ed25519.PrivateKey {
	seed := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
	return ed25519.NewKeyFromSeed(seed)
}

func TestReceipt_SignAndVerify(t *testing.T) {
	s := newTestStore(t)
	s.CreateUser(1, "a@example.com", nil)
	s.SetMasterKey(testKey())
	require.True(t, s.HasMasterKey())

	comment := []byte("for the record")
	receipt := s.CreateBurnReceipt(1, 50000, comment, testNow)
	require.NotNil(t, receipt)

	amount, ts, got, ok := VerifyBurnReceipt(receipt)
	require.True(t, ok)
	assert.Equal(t, int64(50000), amount)
	assert.Equal(t, testNow, ts)
	assert.Equal(t, comment, got)

	// the latest receipt is kept on the account
	assert.Equal(t, receipt, s.Accounts[1].BurnReceipt)
	assert.Equal(t, int64(0), s.ReceiptIDGen)
}

func TestReceipt_SigningIsDeterministic(t *testing.T) {
	sign := func() []byte {
		s := newTestStore(t)
		s.CreateUser(1, "a@example.com", nil)
		s.SetMasterKey(testKey())
		return s.CreateBurnReceipt(1, 123456, []byte("x"), testNow)
	}
	assert.Equal(t, sign(), sign(), "replayed burns must reproduce the receipt")
}

func TestReceipt_Refusals(t *testing.T) {
	s := newTestStore(t)
	p := econ.Default()
	s.CreateUser(1, "a@example.com", nil)

	assert.Nil(t, s.CreateBurnReceipt(1, 100, nil, testNow), "no key configured")

	s.SetMasterKey(testKey())
	assert.Nil(t, s.CreateBurnReceipt(99, 100, nil, testNow), "unknown user")

	long := bytes.Repeat([]byte{'a'}, p.MaxBurnCommentBytes+1)
	assert.Nil(t, s.CreateBurnReceipt(1, 100, long, testNow), "oversized comment")

	assert.NotNil(t, s.CreateBurnReceipt(1, 100, nil, testNow))
}

func TestReceipt_VerifyRejectsTampering(t *testing.T) {
	s := newTestStore(t)
	s.CreateUser(1, "a@example.com", nil)
	s.SetMasterKey(testKey())
	receipt := s.CreateBurnReceipt(1, 50000, []byte("c"), testNow)
	require.NotNil(t, receipt)

	tampered := bytes.Clone(receipt)
	tampered[len(tampered)-1] ^= 0xff
	_, _, _, ok := VerifyBurnReceipt(tampered)
	assert.False(t, ok)

	_, _, _, ok = VerifyBurnReceipt(receipt[:receiptPrefixLen-1])
	assert.False(t, ok)

	_, _, _, ok = VerifyBurnReceipt(nil)
	assert.False(t, ok)
}

func TestReceipt_MasterPublicKeyHex(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.MasterPublicKeyHex())

	key := testKey()
	s.SetMasterKey(key)
	pub := key.Public().(ed25519.PublicKey)
	assert.Equal(t, hex.EncodeToString(pub), s.MasterPublicKeyHex())
}
