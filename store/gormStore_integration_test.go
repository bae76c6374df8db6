package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ledger_rebuild/config"
	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/shopspring/decimal"
)

func TestGormStore_LedgerRoundTrip(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("TEST_MYSQL_DSN"))
	if dsn == "" {
		mysqlName, mysqlPort := startMySQLContainer(t)
		t.Cleanup(func() { _ = dockerRmForce(mysqlName) })
		dsn = fmt.Sprintf("root:testpw@tcp(127.0.0.1:%s)/ledger_test?charset=utf8mb4&parseTime=True&loc=UTC", mysqlPort)
	}
	db, err := config.ConnectDatabaseDSN(dsn, 10)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := models.MigrateTables(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewGormStore(db)
	before, err := s.CountLedger(ctx)
	if err != nil {
		t.Fatalf("CountLedger: %v", err)
	}
	ipk := fmt.Sprintf("it-%d", time.Now().UnixNano())
	number := models.InvoiceNumberFor("T1", "R1", ipk)

	err = s.Transaction(ctx, func(tx LedgerTx) error {
		inv := &models.Invoice{
			InvoiceNumber: number,
			LegacyIPK:     ipk,
			TotalAmount:   decimal.NewFromInt(90),
			Status:        models.InvoiceStatusPaid,
		}
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		items := []models.InvoiceLineItem{
			{LineNo: 1, ItemType: models.LineItemTypeBase, Amount: decimal.NewFromInt(100)},
			{LineNo: 2, ItemType: models.LineItemTypeDiscount, Amount: decimal.NewFromInt(-10)},
		}
		return tx.ReplaceLineItems(ctx, inv.ID, items)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if err := s.CreateInvoice(ctx, &models.Invoice{InvoiceNumber: number, LegacyIPK: ipk + "-b", Status: models.InvoiceStatusPaid}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	rollback := errors.New("rollback")
	_ = s.Transaction(ctx, func(tx LedgerTx) error {
		_ = tx.CreatePayment(ctx, &models.Payment{LegacyIPK: ipk, InvoiceId: 1, PaymentMethod: models.PaymentMethodCash, Status: models.PaymentStatusCompleted})
		return rollback
	})
	if _, err := s.FindPaymentByLegacyIPK(ctx, ipk); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("payment should have been rolled back, got %v", err)
	}

	counts, err := s.CountLedger(ctx)
	if err != nil {
		t.Fatalf("CountLedger: %v", err)
	}
	if counts.Invoices-before.Invoices != 1 || counts.LineItems-before.LineItems != 2 || counts.Payments != before.Payments {
		t.Fatalf("unexpected counts: before=%+v after=%+v", before, counts)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ledger_test",
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
