package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	uv := &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "appointment_active_slot_uq"}

	if !IsUniqueViolation(uv) {
		t.Error("expected unique violation")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", uv)) {
		t.Error("expected wrapped unique violation to match")
	}
	if !IsUniqueViolation(uv, "appointment_active_slot_uq") {
		t.Error("expected match on constraint name")
	}
	if IsUniqueViolation(uv, "organization_user_id_key") {
		t.Error("expected no match for a different constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: CodeForeignKeyViolation}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
	if IsUniqueViolation(nil) {
		t.Error("nil is not a unique violation")
	}
}
