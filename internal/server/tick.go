package server

import (
	"context"
	"fmt"
	"time"

	"github.com/basisd/basis/internal/cred"
	"github.com/basisd/basis/internal/epoch"
	"github.com/basisd/basis/internal/ledger"
)

// Tick advances the economy one simulated day. The sequence is fixed:
// the ledger tick (which may destroy accounts), the credential garbage
// collection (which drops those users' private records and expires
// invites), and finally the release of ledger locks held by the
// expired invites. Any failure in the chain is fatal; a half-run tick
// must not be left behind.
func (s *Server) Tick() error {
	now := s.now()

	tickRes, err := s.execLedger(ledger.Command{Op: ledger.OpTick, Now: now})
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}

	gcRes, err := s.execCred(cred.Command{
		Op:           cred.OpCollectGarbage,
		Now:          now,
		DeletedUsers: tickRes.Deleted,
	})
	if err != nil {
		return fmt.Errorf("tick garbage collection: %w", err)
	}

	if len(gcRes.Expired) > 0 {
		locks := make([]ledger.InviteLock, 0, len(gcRes.Expired))
		for _, invite := range gcRes.Expired {
			if invite.SponsorID >= 0 {
				locks = append(locks, ledger.InviteLock{
					SponsorID: invite.SponsorID,
					Amount:    invite.Amount,
				})
			}
		}
		if len(locks) > 0 {
			if _, err := s.execLedger(ledger.Command{
				Op:    ledger.OpReleaseLocks,
				Now:   now,
				Locks: locks,
			}); err != nil {
				return fmt.Errorf("tick lock release: %w", err)
			}
		}
	}

	s.log.Info("daily tick complete",
		"deleted_users", len(tickRes.Deleted),
		"expired_invites", len(gcRes.Expired))
	return nil
}

// TakeSnapshot snapshots both stores and truncates their logs.
func (s *Server) TakeSnapshot() error {
	if err := s.dmEx.TakeSnapshot(); err != nil {
		return fmt.Errorf("ledger snapshot: %w", err)
	}
	if err := s.secEx.TakeSnapshot(); err != nil {
		return fmt.Errorf("credential snapshot: %w", err)
	}
	return nil
}

// CheckTick runs one tick and a snapshot of both stores if the
// ledger's simulated day has fallen behind the wall clock (or when
// forced). One call advances at most one day; a multi-day gap catches
// up across successive scheduler passes.
func (s *Server) CheckTick(force bool) error {
	var day epoch.Days
	s.dmEx.View(func() { day = s.dm.EpochDay })
	today := epoch.Today()
	if !force && day >= today {
		return nil
	}
	if force {
		s.log.Info("tick forced")
	}
	s.log.Info("tick starting", "ledger_day", day, "today", today)

	if err := s.Tick(); err != nil {
		return err
	}
	if err := s.TakeSnapshot(); err != nil {
		return err
	}

	s.dmEx.View(func() { day = s.dm.EpochDay })
	s.log.Info("tick done", "ledger_day", day)
	return nil
}

// RunTickLoop wakes once a minute to check whether the simulated day
// is behind, until ctx is cancelled. Tick failures abort via the
// returned error; the caller exits the process.
func (s *Server) RunTickLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.CheckTick(false); err != nil {
				return err
			}
		}
	}
}
