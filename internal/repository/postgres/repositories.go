package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts  *AccountRepository
	Divisions *DivisionRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	divisions := NewDivisionRepository(pool)
	return &Repositories{
		Accounts:  NewAccountRepository(pool, divisions),
		Divisions: divisions,
	}
}
