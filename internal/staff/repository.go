package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnhub/console/internal/permissions"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var staffColumns = func() string {
	cols := []string{"id", "username", "first_name", "last_name", "email", "is_superuser", "avatar_url"}
	for _, c := range permissions.All() {
		cols = append(cols, pgx.Identifier{string(c)}.Sanitize())
	}
	return strings.Join(cols, ", ")
}()

// Get returns one staff member.
func (r *Repository) Get(ctx context.Context, id int64) (permissions.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1 AND is_active`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return permissions.Identity{}, ErrNotFound
	}
	return identity, err
}

// List returns every active staff member ordered by username.
func (r *Repository) List(ctx context.Context) ([]permissions.Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+staffColumns+` FROM staff WHERE is_active ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []permissions.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, rows.Err()
}

// UpdateFlags writes the given flags of a non-superuser and returns the stored row.
func (r *Repository) UpdateFlags(ctx context.Context, id int64, patch permissions.Flags) (permissions.Identity, error) {
	sets := make([]string, 0, len(patch)+1)
	args := []any{id}
	for _, c := range permissions.All() {
		granted, ok := patch[c]
		if !ok {
			continue
		}
		args = append(args, granted)
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{string(c)}.Sanitize(), len(args)))
	}
	if len(sets) == 0 {
		return permissions.Identity{}, ErrEmptyPatch
	}
	sets = append(sets, "updated_at = NOW()")
	query := `UPDATE staff SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND is_active AND NOT is_superuser RETURNING ` + staffColumns
	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return permissions.Identity{}, ErrNotFound
	}
	return identity, err
}

func scanIdentity(row pgx.Row) (permissions.Identity, error) {
	var identity permissions.Identity
	var avatar *string
	flags := make([]bool, len(permissions.All()))
	dest := []any{&identity.ID, &identity.Username, &identity.FirstName, &identity.LastName, &identity.Email, &identity.IsSuperuser, &avatar}
	for i := range flags {
		dest = append(dest, &flags[i])
	}
	if err := row.Scan(dest...); err != nil {
		return permissions.Identity{}, err
	}
	if avatar != nil {
		identity.AvatarURL = *avatar
	}
	identity.Flags = make(permissions.Flags, len(flags))
	for i, c := range permissions.All() {
		identity.Flags[c] = flags[i]
	}
	return identity, nil
}

var _ RepositoryPort = (*Repository)(nil)
