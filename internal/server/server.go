// Package server is the façade over the two journaled stores. It turns
// every external request into one or more commands, sequences the
// cross-store ones (user creation, invite acceptance, the daily tick),
// and owns the only secure-random source and password hashing in the
// process, so the stores themselves stay deterministic.
//
// Cross-store sequencing is best effort, not transactional: when the
// second command of a pair fails after the first committed, the
// documented per-operation fallback applies (usually "tolerate and
// log"). A fatal journal error aborts the process instead, since the
// alternative is divergent replay state.
package server

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/econ"
	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/journal"
	"github.com/basisd/basis/internal/ledger"
)

const bcryptCost = 12

// Server is one running instance. All methods are safe for concurrent
// use; each store's executor serializes its writers.
type Server struct {
	dm    *ledger.Ledger
	sec   *cred.Store
	dmEx  *journal.Executor[ledger.Result]
	secEx *journal.Executor[cred.Result]

	params *econ.Params
	log    *slog.Logger

	// now is the request clock, swappable in tests.
	now func() epoch.Minutes

	muSuper    sync.RWMutex
	superUsers map[int32]bool

	shutdown chan struct{}
	shutOnce sync.Once
}

// Open restores both stores from dataDir (creating empty journals on
// first boot) and returns a ready server.
func Open(dataDir string, params *econ.Params, log *slog.Logger) (*Server, error) {
	s := &Server{
		dm:         ledger.New(params, log.With("store", "ledger")),
		sec:        cred.New(params, log.With("store", "cred")),
		params:     params,
		log:        log,
		now:        epoch.Now,
		superUsers: map[int32]bool{},
		shutdown:   make(chan struct{}),
	}

	var err error
	s.dmEx, err = journal.Open(filepath.Join(dataDir, "ledger.db"), s.dm, log.With("journal", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger journal: %w", err)
	}
	s.secEx, err = journal.Open(filepath.Join(dataDir, "cred.db"), s.sec, log.With("journal", "cred"))
	if err != nil {
		s.dmEx.Close()
		return nil, fmt.Errorf("open credential journal: %w", err)
	}

	var day epoch.Days
	s.dmEx.View(func() { day = s.dm.EpochDay })
	log.Info("server restored", "ledger_day", day, "today", epoch.Today())
	return s, nil
}

// Close closes both journals.
func (s *Server) Close() error {
	err1 := s.dmEx.Close()
	err2 := s.secEx.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SetSuperUsers registers the accounts allowed to use admin calls.
func (s *Server) SetSuperUsers(userIDs []int32) {
	s.muSuper.Lock()
	defer s.muSuper.Unlock()
	for _, id := range userIDs {
		s.superUsers[id] = true
	}
}

func (s *Server) isSuperUser(userID int32) bool {
	s.muSuper.RLock()
	defer s.muSuper.RUnlock()
	return s.superUsers[userID]
}

// ShutdownRequested is closed when an authorized shutdown request
// arrives; the serve loop waits on it.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// RequestShutdown triggers a graceful stop.
func (s *Server) RequestShutdown() {
	s.shutOnce.Do(func() { close(s.shutdown) })
}

// execLedger encodes and runs one ledger command through its journal.
func (s *Server) execLedger(c ledger.Command) (ledger.Result, error) {
	payload, err := c.Encode()
	if err != nil {
		return ledger.Result{}, err
	}
	return s.dmEx.Execute(string(c.Op), payload)
}

// execCred encodes and runs one credential command through its journal.
func (s *Server) execCred(c cred.Command) (cred.Result, error) {
	payload, err := c.Encode()
	if err != nil {
		return cred.Result{}, err
	}
	return s.secEx.Execute(string(c.Op), payload)
}

// randomCode draws a positive random int64 for session IDs, invitation
// codes, and password reset codes. Zero is excluded; the stores use it
// as "none."
func randomCode() (int64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("read random: %w", err)
		}
		v := int64(binary.BigEndian.Uint64(buf[:]) &^ (1 << 63))
		if v > 0 {
			return v, nil
		}
	}
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(plaintext string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// touchSession resolves a session to its user, refreshing its timer.
// The refresh mutates, so it runs as a journaled command like any
// other write.
func (s *Server) touchSession(sessionID int64) (int32, error) {
	res, err := s.execCred(cred.Command{Op: cred.OpTouchSession, Now: s.now(), Code: sessionID})
	if err != nil {
		return 0, err
	}
	if res.Code.IsError() {
		return int32(res.Code), nil
	}
	return int32(res.Value), nil
}
