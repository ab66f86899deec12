package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: billing_subscriptions.entity"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsRetryableTxErr(t *testing.T) {
	if !IsRetryableTxErr(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsRetryableTxErr(errors.New("boom")) {
		t.Fatalf("plain error should not be retryable")
	}
}

func TestIsForeignKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("insert: %w", gorm.ErrForeignKeyViolated), true},
		{&pgconn.PgError{Code: "23503"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{errors.New("FOREIGN KEY constraint failed"), true},
		{errors.New("Error 1452: cannot add or update a child row"), true},
		{errors.New("timeout"), false},
	}
	for _, tc := range cases {
		if got := IsForeignKeyErr(tc.err); got != tc.want {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.want, got)
		}
	}
}
