package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"parishnet.org/internal/audit"
	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		ID: "u1", FullName: "Anna", Email: "anna@example.org", PasswordHash: "x",
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindExcludesSoftDeleted(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select (.+) from users where id = \\$1 and is_deleted = false").
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Users(context.Background()).Find(context.Background(), "gone")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleDeleteCascadesAssignments(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles where role_id").
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("delete from roles where id").
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Roles(context.Background()).Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleDeleteMissingRollsBack(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles where role_id").
		WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from roles where id").
		WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Roles(context.Background()).Delete(context.Background(), "nope")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignDuplicateIsConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "r1", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Roles(context.Background()).Assign(context.Background(), auth.RoleAssignment{
		UserID: "u1", RoleID: "r1", AssignedAt: time.Now(),
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPrayerCascadeRunsInOneTransaction(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("update prayers set is_deleted = true").
		WithArgs("p1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update prayer_responses set is_deleted = true").
		WithArgs("p1", at).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from prayer_reactions where prayer_id").
		WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("update notifications set is_deleted = true").
		WithArgs("p1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	affected, err := store.Prayers(context.Background()).SoftDeleteCascade(context.Background(), "p1", at)
	if err != nil {
		t.Fatalf("SoftDeleteCascade: %v", err)
	}
	if affected != 7 {
		t.Fatalf("affected = %d, want 7", affected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPrayerCascadeAlreadyDeleted(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update prayers set is_deleted = true").
		WithArgs("p1", at).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Prayers(context.Background()).SoftDeleteCascade(context.Background(), "p1", at)
	if !errors.Is(err, community.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReactionCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into prayer_reactions").
		WithArgs(sqlmock.AnyArg(), "p1", "u1", "prayed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.PrayerReactions(context.Background()).Create(context.Background(), &community.PrayerReaction{
		ID: "x", PrayerID: "p1", UserID: "u1", Reaction: "prayed",
	})
	if !errors.Is(err, community.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("insert into audit_logs").
		WithArgs("a1", "admin-1", "ROLE_CREATED", "role", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &audit.Entry{
		ID: "a1", AdminUserID: "admin-1", Action: "ROLE_CREATED",
		EntityType: "role", EntityID: "r1", CreatedAt: now,
	}
	if err := store.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mock.ExpectQuery("select count\\(\\*\\) from audit_logs where action ilike").
		WithArgs("%role%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("select id, admin_user_id, action").
		WithArgs("%role%", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "admin_user_id", "action", "entity_type", "entity_id", "metadata", "ip_address", "created_at"}).
			AddRow("a1", "admin-1", "ROLE_CREATED", "role", "r1", []byte(`{"k":"v"}`), "", now))

	entries, total, err := store.List(context.Background(), audit.Filter{Action: "role", Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", total, len(entries))
	}
	if entries[0].Metadata["k"] != "v" {
		t.Fatalf("metadata not decoded: %+v", entries[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPurgeExpiredSweepsBothTables(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("delete from prayers where expires_at").
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("delete from testimonies where expires_at").
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))

	purged, err := store.PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 6 {
		t.Fatalf("purged = %d, want 6", purged)
	}
}

func TestTokenPurgeExpired(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("delete from password_reset_tokens where expires_at").
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from email_otps where expires_at").
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 1))

	purged, err := store.Tokens(context.Background()).PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 3 {
		t.Fatalf("purged = %d, want 3", purged)
	}
}
