package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"bitbucket.org/mmdatafocus/hvacops_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestQAGateHoldbackLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "hvacops_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := config.ClearRedis(ctx); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	// History hooks require user context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	// 1) Create a new business (seeds the default QA policy).
	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test HVAC Co",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID)

	// Owner credentials round-trip through the bcrypt hash.
	if _, err := models.CreateUser(ctx, &models.NewUser{
		BusinessId: biz.ID,
		Username:   "Owner.Test",
		Name:       "Owner",
		Password:   "s3cret-pw",
		Role:       models.UserRoleOwner,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := models.Login(ctx, "owner.test", "s3cret-pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	policy, err := models.GetQAPolicy(ctx, biz.ID)
	if err != nil {
		t.Fatalf("GetQAPolicy: %v", err)
	}
	if policy.HoldbackPercent.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("expected default holdback percent 10; got %s", policy.HoldbackPercent)
	}

	// 2) Complete a job with failing facts. The ledger entry opens held with
	// the snapshot amount regardless of the verdict.
	reading := decimal.NewFromInt(501)
	scheduled := models.InspectionStatusScheduled
	status, err := workflow.CompleteJob(ctx, &models.NewJobSignoff{
		JobId:              "JOB-1001",
		CustomerName:       "Acme Ltd",
		Subcontractor:      "CoolFlow Mechanical",
		TotalAmount:        decimal.NewFromInt(12500),
		MicronsReading:     &reading,
		WarrantyRegistered: utils.NewFalse(),
		InspectionStatus:   &scheduled,
		Photos: []models.NewJobPhoto{
			{Type: models.PhotoTypeBefore, ObjectKey: "test/before.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if status.Holdback == nil {
		t.Fatalf("expected holdback entry on completion")
	}
	if status.Holdback.Status != models.HoldbackStatusHeld {
		t.Fatalf("expected held; got %s", status.Holdback.Status)
	}
	if status.Holdback.Amount.Cmp(decimal.NewFromInt(1250)) != 0 {
		t.Fatalf("expected snapshot amount 1250; got %s", status.Holdback.Amount)
	}

	// 3) The verdict lists every failing check in fixed order.
	wantReasons := []string{
		"Microns reading 501 exceeds limit (500)",
		"Missing required photos: after, equipment",
		"Warranty not registered",
		"Inspection not yet completed",
	}
	if len(status.Verdict.BlockingReasons) != len(wantReasons) {
		t.Fatalf("reasons = %v, want %v", status.Verdict.BlockingReasons, wantReasons)
	}
	for i, want := range wantReasons {
		if status.Verdict.BlockingReasons[i] != want {
			t.Fatalf("reason[%d] = %q, want %q", i, status.Verdict.BlockingReasons[i], want)
		}
	}
	if status.QAStatus != models.QAStatusBlocked {
		t.Fatalf("expected blocked badge; got %s", status.QAStatus)
	}

	// 4) Re-reading without mutation returns the same verdict.
	again, err := workflow.GetJobStatus(ctx, "JOB-1001")
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if again.QAStatus != status.QAStatus || len(again.Verdict.BlockingReasons) != len(status.Verdict.BlockingReasons) {
		t.Fatalf("verdict changed without mutation: %+v vs %+v", again.Verdict, status.Verdict)
	}

	// 5) Raising the policy percent must not touch the existing snapshot.
	newPct := decimal.NewFromInt(20)
	if _, err := models.UpdateQAPolicy(ctx, &models.QAPolicyUpdate{HoldbackPercent: &newPct}); err != nil {
		t.Fatalf("UpdateQAPolicy: %v", err)
	}
	after, err := workflow.GetJobStatus(ctx, "JOB-1001")
	if err != nil {
		t.Fatalf("GetJobStatus after policy change: %v", err)
	}
	if after.Holdback.Amount.Cmp(decimal.NewFromInt(1250)) != 0 {
		t.Fatalf("snapshot amount changed after policy update: %s", after.Holdback.Amount)
	}
	if after.Holdback.Percent.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("snapshot percent changed after policy update: %s", after.Holdback.Percent)
	}
	pct := decimal.NewFromInt(10)
	if _, err := models.UpdateQAPolicy(ctx, &models.QAPolicyUpdate{HoldbackPercent: &pct}); err != nil {
		t.Fatalf("UpdateQAPolicy (restore): %v", err)
	}

	// 6) Supplying the missing facts flips the gate and releases the holdback
	// in the same transaction with the gatePassed basis.
	goodReading := decimal.NewFromInt(450)
	passed := models.InspectionStatusPassed
	released, err := workflow.UpdateSignoff(ctx, "JOB-1001", &models.SignoffUpdate{
		MicronsReading:     &goodReading,
		WarrantyRegistered: utils.NewTrue(),
		InspectionStatus:   &passed,
		Photos: []models.NewJobPhoto{
			{Type: models.PhotoTypeAfter, ObjectKey: "test/after.jpg"},
			{Type: models.PhotoTypeEquipment, ObjectKey: "test/equipment.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("UpdateSignoff: %v", err)
	}
	if !released.Verdict.OverallPass {
		t.Fatalf("expected passing verdict, reasons: %v", released.Verdict.BlockingReasons)
	}
	if released.Holdback.Status != models.HoldbackStatusReleased {
		t.Fatalf("expected released; got %s", released.Holdback.Status)
	}
	if released.Holdback.ReleaseBasis == nil || *released.Holdback.ReleaseBasis != models.ReleaseBasisGatePassed {
		t.Fatalf("expected gatePassed basis; got %v", released.Holdback.ReleaseBasis)
	}
	if !released.PayoutEligible {
		t.Fatalf("passing job must be payout eligible")
	}

	// 7) A job completed with every fact already satisfied releases its
	// holdback on the completion path itself; no follow-up update is needed.
	clean, err := workflow.CompleteJob(ctx, &models.NewJobSignoff{
		JobId:              "JOB-1003",
		CustomerName:       "Delta Retail",
		Subcontractor:      "Peak Air Subs",
		TotalAmount:        decimal.NewFromInt(6400),
		MicronsReading:     &goodReading,
		WarrantyRegistered: utils.NewTrue(),
		InspectionStatus:   &passed,
		Photos: []models.NewJobPhoto{
			{Type: models.PhotoTypeBefore, ObjectKey: "test/1003-before.jpg"},
			{Type: models.PhotoTypeAfter, ObjectKey: "test/1003-after.jpg"},
			{Type: models.PhotoTypeEquipment, ObjectKey: "test/1003-equipment.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("CompleteJob (passing): %v", err)
	}
	if !clean.Verdict.OverallPass {
		t.Fatalf("expected passing verdict on completion, reasons: %v", clean.Verdict.BlockingReasons)
	}
	if clean.Holdback == nil || clean.Holdback.Status != models.HoldbackStatusReleased {
		t.Fatalf("expected released on completion; got %+v", clean.Holdback)
	}
	if clean.Holdback.ReleaseBasis == nil || *clean.Holdback.ReleaseBasis != models.ReleaseBasisGatePassed {
		t.Fatalf("expected gatePassed basis on completion; got %v", clean.Holdback.ReleaseBasis)
	}
	if clean.Holdback.Amount.Cmp(decimal.NewFromInt(640)) != 0 {
		t.Fatalf("expected snapshot amount 640; got %s", clean.Holdback.Amount)
	}
	if clean.QAStatus != models.QAStatusPassed {
		t.Fatalf("expected passed badge; got %s", clean.QAStatus)
	}

	// 8) Second job stays blocked; force release moves the money anyway and
	// leaves the audit trail.
	status2, err := workflow.CompleteJob(ctx, &models.NewJobSignoff{
		JobId:         "JOB-1002",
		CustomerName:  "Beta Homes",
		Subcontractor: "CoolFlow Mechanical",
		TotalAmount:   decimal.NewFromInt(8000),
	})
	if err != nil {
		t.Fatalf("CompleteJob (second): %v", err)
	}
	if status2.QAStatus != models.QAStatusBlocked {
		t.Fatalf("expected blocked badge (unregistered warranty); got %s", status2.QAStatus)
	}

	forced, err := workflow.ForceReleaseHoldback(ctx, "JOB-1002", "Sub dispute settled, paying out early")
	if err != nil {
		t.Fatalf("ForceReleaseHoldback: %v", err)
	}
	if forced.Holdback.Status != models.HoldbackStatusForceReleased {
		t.Fatalf("expected forceReleased; got %s", forced.Holdback.Status)
	}
	if forced.Holdback.ReleaseBasis == nil || *forced.Holdback.ReleaseBasis != models.ReleaseBasisOverride {
		t.Fatalf("expected override basis; got %v", forced.Holdback.ReleaseBasis)
	}
	if len(forced.Record.Overrides) != 1 || forced.Record.Overrides[0].Type != models.OverrideTypeHoldbackForceRelease {
		t.Fatalf("expected one holdbackForceRelease override record; got %+v", forced.Record.Overrides)
	}

	// The override alone does not make the gate eligible.
	if forced.PayoutEligible {
		t.Fatalf("force release must not imply payout eligibility")
	}

	// 9) Terminal state: a second force release is rejected.
	if _, err := workflow.ForceReleaseHoldback(ctx, "JOB-1002", "again"); !utils.IsInvalidState(err) {
		t.Fatalf("second force release: got %v, want invalid state", err)
	}

	// 10) A gate override makes the failing job payout eligible without
	// touching the stored checks or the ledger.
	overridden, err := workflow.OverrideGate(ctx, "JOB-1002", "Inspector unavailable this week")
	if err != nil {
		t.Fatalf("OverrideGate: %v", err)
	}
	if overridden.Verdict.OverallPass {
		t.Fatalf("override must not flip the stored verdict")
	}
	if !overridden.PayoutEligible {
		t.Fatalf("overridden job must be payout eligible")
	}

	// 11) Duplicate field-app delivery is a safe skip.
	micronsAgain := decimal.NewFromInt(470)
	msg := &workflow.FieldSignoffMessage{
		BusinessId: biz.ID,
		JobId:      "JOB-1002",
		Facts:      models.SignoffUpdate{MicronsReading: &micronsAgain},
	}
	if err := workflow.ProcessFieldSignoff(ctx, "msg-777", msg); err != nil {
		t.Fatalf("ProcessFieldSignoff: %v", err)
	}
	if err := workflow.ProcessFieldSignoff(ctx, "msg-777", msg); err != nil {
		t.Fatalf("ProcessFieldSignoff (redelivery): %v", err)
	}
	dup, err := workflow.GetJobStatus(ctx, "JOB-1002")
	if err != nil {
		t.Fatalf("GetJobStatus after redelivery: %v", err)
	}
	if dup.Record.MicronsReading == nil || dup.Record.MicronsReading.Cmp(micronsAgain) != 0 {
		t.Fatalf("expected reading 470 after field signoff; got %v", dup.Record.MicronsReading)
	}

	// 12) The outbox carries one row per lifecycle event for the jobs above.
	db := config.GetDB()
	var eventTypes []string
	if err := db.WithContext(ctx).Model(&models.QAEventRecord{}).
		Where("business_id = ?", biz.ID).
		Order("id").
		Pluck("event_type", &eventTypes).Error; err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	counts := map[models.QAEventType]int{}
	for _, et := range eventTypes {
		counts[models.QAEventType(et)]++
	}
	if counts[models.QAEventJobCompleted] != 3 {
		t.Fatalf("expected 3 %s events; got %d", models.QAEventJobCompleted, counts[models.QAEventJobCompleted])
	}
	if counts[models.QAEventHoldbackReleased] != 2 {
		t.Fatalf("expected 2 %s events; got %d", models.QAEventHoldbackReleased, counts[models.QAEventHoldbackReleased])
	}
	if counts[models.QAEventHoldbackForceReleased] != 1 {
		t.Fatalf("expected 1 %s event; got %d", models.QAEventHoldbackForceReleased, counts[models.QAEventHoldbackForceReleased])
	}
	if counts[models.QAEventGateOverridden] != 1 {
		t.Fatalf("expected 1 %s event; got %d", models.QAEventGateOverridden, counts[models.QAEventGateOverridden])
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("hvacops-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("hvacops-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=hvacops_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
