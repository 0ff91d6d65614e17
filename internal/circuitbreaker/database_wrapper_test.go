package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
)

func TestDatabaseWrapper_NormalOperations(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	wrapper := NewDatabaseWrapper(sqlx.NewDb(db, "postgres"), zaptest.NewLogger(t))
	ctx := context.Background()

	mock.ExpectPing()
	if err := wrapper.PingContext(ctx); err != nil {
		t.Errorf("PingContext failed: %v", err)
	}

	mock.ExpectQuery("SELECT (.+) FROM items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))

	var rows []struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}
	if err := wrapper.SelectContext(ctx, &rows, "SELECT id, name FROM items"); err != nil {
		t.Errorf("SelectContext failed: %v", err)
	}
	if len(rows) != 2 || rows[1].Name != "b" {
		t.Errorf("Unexpected rows: %+v", rows)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestDatabaseWrapper_OpensAfterFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	wrapper := NewDatabaseWrapper(sqlx.NewDb(db, "postgres"), zaptest.NewLogger(t))
	ctx := context.Background()

	threshold := int(GetDatabaseConfig().FailureThreshold)
	for i := 0; i < threshold; i++ {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))
		var out []string
		_ = wrapper.SelectContext(ctx, &out, "SELECT 1")
	}

	if !wrapper.IsCircuitBreakerOpen() {
		t.Fatal("Expected breaker to be open")
	}

	var out []string
	if err := wrapper.SelectContext(ctx, &out, "SELECT 1"); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
}
