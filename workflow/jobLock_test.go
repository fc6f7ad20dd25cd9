package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The MySQL advisory lock in
// withJobLock reduces to per-job mutual exclusion, so they hold a plain
// mutex per job and race the real ledger transitions behind it. What must
// hold regardless of backend: exactly one release wins, the rest land in
// InvalidState, and the basis is stamped by exactly one cause.
//
// Full DB+PubSub integration tests live in qaGate_regression_test.go and
// need MySQL + Redis.

func heldEntry(jobId string) *models.HoldbackEntry {
	total := decimal.NewFromInt(12500)
	pct := decimal.NewFromInt(10)
	return &models.HoldbackEntry{
		ID:         1,
		BusinessId: "biz-1",
		JobId:      jobId,
		Amount:     models.ComputeHoldbackAmount(total, pct),
		Percent:    pct,
		Status:     models.HoldbackStatusHeld,
	}
}

func TestConcurrentGateRelease_ExactlyOneTransition(t *testing.T) {
	entry := heldEntry("JOB-9001")

	var jobMu sync.Mutex
	var wg sync.WaitGroup
	var resultMu sync.Mutex
	released := 0
	var rejections []error

	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start

			jobMu.Lock()
			err := entry.MarkReleased(worker, time.Now().UTC())
			jobMu.Unlock()

			resultMu.Lock()
			defer resultMu.Unlock()
			if err == nil {
				released++
			} else {
				rejections = append(rejections, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if released != 1 {
		t.Fatalf("expected exactly one successful release; got %d", released)
	}
	if len(rejections) != 49 {
		t.Fatalf("expected 49 rejections; got %d", len(rejections))
	}
	for _, err := range rejections {
		if !utils.IsInvalidState(err) {
			t.Fatalf("loser must get invalid state; got %v", err)
		}
	}
	if entry.Status != models.HoldbackStatusReleased {
		t.Fatalf("expected released; got %s", entry.Status)
	}
	if entry.ReleaseBasis == nil || *entry.ReleaseBasis != models.ReleaseBasisGatePassed {
		t.Fatalf("expected gatePassed basis; got %v", entry.ReleaseBasis)
	}
	if entry.ReleasedAt == nil || entry.ReleasedBy == nil {
		t.Fatalf("release must stamp releasedAt and releasedBy")
	}
}

// A signoff-driven release racing a force release must resolve to a single
// transition with a single basis, never a blend of both.
func TestConcurrentReleaseVsForceRelease_SingleBasis(t *testing.T) {
	for run := 0; run < 100; run++ {
		entry := heldEntry("JOB-9002")

		var jobMu sync.Mutex
		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			jobMu.Lock()
			errs[0] = entry.MarkReleased(5, time.Now().UTC())
			jobMu.Unlock()
		}()
		go func() {
			defer wg.Done()
			<-start
			jobMu.Lock()
			errs[1] = entry.MarkForceReleased(8, time.Now().UTC())
			jobMu.Unlock()
		}()
		close(start)
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else if !utils.IsInvalidState(err) {
				t.Fatalf("run %d: loser must get invalid state; got %v", run, err)
			}
		}
		if wins != 1 {
			t.Fatalf("run %d: expected exactly one winner; got %d", run, wins)
		}
		if entry.ReleaseBasis == nil {
			t.Fatalf("run %d: winner must stamp a basis", run)
		}
		switch entry.Status {
		case models.HoldbackStatusReleased:
			if *entry.ReleaseBasis != models.ReleaseBasisGatePassed || errs[0] != nil {
				t.Fatalf("run %d: released state with wrong basis/winner", run)
			}
		case models.HoldbackStatusForceReleased:
			if *entry.ReleaseBasis != models.ReleaseBasisOverride || errs[1] != nil {
				t.Fatalf("run %d: forceReleased state with wrong basis/winner", run)
			}
		default:
			t.Fatalf("run %d: unexpected final status %s", run, entry.Status)
		}
	}
}

// Without a configured redis client the fast-path lock degrades to a no-op
// and must never block or panic; the advisory lock stays authoritative.
func TestRedisJobLock_DegradesWithoutClient(t *testing.T) {
	if config.GetRedisLock() != nil {
		t.Skip("redis is connected in this run")
	}
	ctx := context.Background()
	lock := tryRedisJobLock(ctx, "JOB-9003")
	if lock != nil {
		t.Fatalf("expected nil lock without a redis client; got %v", lock)
	}
	releaseRedisJobLock(ctx, lock)
}
