package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/repository"
)

// DivisionRepository resolves division identifiers for student profiles.
type DivisionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewDivisionRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewDivisionRepository(exec pgExecutor) *DivisionRepository {
	return &DivisionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *DivisionRepository) withExec(exec pgExecutor) *DivisionRepository {
	if exec == nil {
		return r
	}
	return &DivisionRepository{
		exec:    exec,
		builder: r.builder,
	}
}

// GetID looks up a division identifier by department and division name.
func (r *DivisionRepository) GetID(ctx context.Context, department, name string) (string, error) {
	stmt, args, err := r.builder.
		Select("id").
		From("campus.divisions").
		Where(squirrel.Eq{"department": department, "name": name}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select division sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan division: %w", err)
	}

	return id, nil
}

var _ port.DivisionRepository = (*DivisionRepository)(nil)
