package ledger

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisd/basis/internal/econ"
	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/errcode"
)

// apply encodes and applies a command the way the journal would.
func apply(t *testing.T, l *Ledger, c Command) Result {
	t.Helper()
	payload, err := c.Encode()
	require.NoError(t, err)
	res, err := l.Apply(payload)
	require.NoError(t, err)
	return res
}

func TestApply_UnknownOpIsFatal(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Apply([]byte(`{"op":"warp_money","now":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warp_money")
}

func TestApply_BadPayloadIsFatal(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Apply([]byte(`{"op":`))
	require.Error(t, err)
}

// Replaying the recorded payloads against a fresh ledger must land on
// the identical state, including every sampled voter and every log
// entry, because replay is the whole recovery story.
func TestApply_ReplayIsDeterministic(t *testing.T) {
	p := econ.Default()

	cmds := []Command{
		{Op: OpCreateUser, Now: testNow, Name: "alice", SponsorID: -1, StartBalance: 500 * econ.Coin, Anchor: true},
		{Op: OpCreateUser, Now: testNow + 1, Name: "bob", SponsorID: 0},
		{Op: OpCreateUser, Now: testNow + 2, Name: "carol", SponsorID: 0, StartBalance: 50 * econ.Coin, Anchor: true},
		{Op: OpSendMoney, Now: testNow + 3, UserID: 0, OtherID: 1, Amount: 30 * econ.Coin, Exact: true},
		{Op: OpCreateInvite, Now: testNow + 4, UserID: 0, Amount: p.MinInviteAmount},
		{Op: OpAddValidation, Now: testNow + 5, UserID: 1, OtherID: 2},
		{Op: OpRequestTrust, Now: testNow + 6, UserID: 1},
		{Op: OpVoteTrust, Now: testNow + 7, UserID: 0, Vote: true},
		{Op: OpReleaseLocks, Now: testNow + 8, Locks: []InviteLock{{SponsorID: 0, Amount: p.MinInviteAmount}}},
		{Op: OpBurnMoney, Now: testNow + 9, UserID: 2, Amount: econ.Coin},
		{Op: OpEditInfo, Now: testNow + 10, UserID: 1, Name: "Bob", Profile: []string{"hi"}},
		{Op: OpTouchLogin, Now: testNow + 11, UserID: 1},
		{Op: OpTick, Now: testNow + epoch.MinutesPerDay},
	}

	l1 := newTestLedger(t)
	l2 := newTestLedger(t)
	for _, c := range cmds {
		r1 := apply(t, l1, c)
		r2 := apply(t, l2, c)
		assert.Equal(t, r1, r2, "op %s", c.Op)
	}

	s1, err := l1.Snapshot()
	require.NoError(t, err)
	s2, err := l2.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	addTrusted(t, l, 3, 20*econ.Coin)
	u := addUser(t, l, "candidate", 50*econ.Coin, false)
	require.Equal(t, errcode.OK, l.RequestTrust(u, testNow))
	l.Tick(testNow + epoch.MinutesPerDay)

	snap, err := l.Snapshot()
	require.NoError(t, err)

	restored := newTestLedger(t)
	require.NoError(t, restored.Restore(snap))

	again, err := restored.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	// a restored ledger keeps working with its attached runtime
	_, code := restored.SendMoney(0, 1, econ.Coin, true, false, testNow+epoch.MinutesPerDay+1)
	assert.Equal(t, errcode.OK, code)
}

func TestRestore_EmptySnapshotGetsUsableMaps(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Restore([]byte(`{"userIdGen":-1}`)))

	_, code := l.CreateUser(NewAccount("a", nil, testNow), NoSponsor, testNow)
	assert.Equal(t, errcode.OK, code)
}

// The journal stores these payloads forever, so the wire shape is
// frozen by a golden file.
func TestCommand_EncodeGolden(t *testing.T) {
	cmds := []Command{
		{Op: OpCreateUser, Now: 1000, Name: "Alice", Profile: []string{"hello"}, SponsorID: -1},
		{Op: OpSendMoney, Now: 1500, UserID: 3, OtherID: 7, Amount: 50000, Exact: true},
		{Op: OpVoteTrust, Now: 2000, UserID: 4, Vote: true},
		{Op: OpReleaseLocks, Now: 2500, Locks: []InviteLock{{SponsorID: 2, Amount: 360000}}},
		{Op: OpTick, Now: 2880},
	}

	var buf bytes.Buffer
	for _, c := range cmds {
		payload, err := c.Encode()
		require.NoError(t, err)
		buf.Write(payload)
		buf.WriteByte('\n')
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "commands", buf.Bytes())
}
