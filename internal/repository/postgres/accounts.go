package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/repository"
)

const pgUniqueViolation = "23505"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPool adds transaction support on top of pgExecutor. Satisfied by
// *pgxpool.Pool and by mock pools in tests.
type pgPool interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db        pgPool
	exec      pgExecutor
	divisions *DivisionRepository
	builder   squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any pool that
// satisfies pgPool.
func NewAccountRepository(db pgPool, divisions *DivisionRepository) *AccountRepository {
	return &AccountRepository{
		db:        db,
		exec:      db,
		divisions: divisions,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// withTx returns a repository instance operating within the supplied
// transaction.
func (r *AccountRepository) withTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		db:        r.db,
		exec:      tx,
		divisions: r.divisions,
		builder:   r.builder,
	}
}

// GetByEmail retrieves an account by its globally unique email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select("id", "username", "email", "password_hash", "role", "contact_number", "created_at").
		From("campus.accounts").
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.ContactNumber,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &account, nil
}

// ExistsByEmail reports whether an account with the provided email exists.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	row := r.exec.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM campus.accounts WHERE email = $1)", email)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("scan account exists: %w", err)
	}

	return exists, nil
}

// CreateWithProfile inserts the account and its role profile in one
// transaction. The email uniqueness re-check converts the race between two
// concurrent registrations into a clean ErrConflict for the loser.
func (r *AccountRepository) CreateWithProfile(ctx context.Context, account domain.Account, profile domain.ProfileData) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txRepo := r.withTx(tx)

	exists, err := txRepo.ExistsByEmail(ctx, account.Email)
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrConflict
	}

	if err := txRepo.insertAccount(ctx, account); err != nil {
		return err
	}

	if err := txRepo.insertProfile(ctx, account, profile); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return repository.ErrConflict
		}
		return fmt.Errorf("commit registration tx: %w", err)
	}

	return nil
}

func (r *AccountRepository) insertAccount(ctx context.Context, account domain.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("campus.accounts").
		Columns("id", "username", "email", "password_hash", "role", "contact_number", "created_at").
		Values(account.ID, account.Username, account.Email, account.PasswordHash, account.Role, account.ContactNumber, createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// insertProfile dispatches exhaustively over the closed role set. An unknown
// role aborts the transaction rather than silently skipping the profile row.
func (r *AccountRepository) insertProfile(ctx context.Context, account domain.Account, profile domain.ProfileData) error {
	switch account.Role {
	case domain.RoleStudent:
		divisionID, err := r.divisions.withExec(r.exec).GetID(ctx, profile.Department, profile.Division)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return repository.ErrDivisionNotFound
			}
			return err
		}
		return r.insertStudentProfile(ctx, domain.StudentProfile{
			AccountID:   account.ID,
			DivisionID:  divisionID,
			RollNumber:  profile.RollNumber,
			YearOfStudy: profile.YearOfStudy,
		})
	case domain.RoleFaculty:
		return r.insertFacultyProfile(ctx, domain.FacultyProfile{
			AccountID:   account.ID,
			Department:  profile.Department,
			Designation: profile.Designation,
		})
	case domain.RoleAdmin:
		return r.insertAdminProfile(ctx, domain.AdminProfile{AccountID: account.ID})
	default:
		return fmt.Errorf("unknown role %q", account.Role)
	}
}

func (r *AccountRepository) insertStudentProfile(ctx context.Context, profile domain.StudentProfile) error {
	stmt, args, err := r.builder.Insert("campus.student_profiles").
		Columns("account_id", "division_id", "roll_number", "year_of_study").
		Values(profile.AccountID, profile.DivisionID, profile.RollNumber, profile.YearOfStudy).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert student profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert student profile: %w", err)
	}

	return nil
}

func (r *AccountRepository) insertFacultyProfile(ctx context.Context, profile domain.FacultyProfile) error {
	stmt, args, err := r.builder.Insert("campus.faculty_profiles").
		Columns("account_id", "department", "designation").
		Values(profile.AccountID, profile.Department, profile.Designation).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert faculty profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert faculty profile: %w", err)
	}

	return nil
}

func (r *AccountRepository) insertAdminProfile(ctx context.Context, profile domain.AdminProfile) error {
	stmt, args, err := r.builder.Insert("campus.admin_profiles").
		Columns("account_id").
		Values(profile.AccountID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert admin profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert admin profile: %w", err)
	}

	return nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
