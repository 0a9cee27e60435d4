package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecutor abstracts *pgxpool.Pool so the repository can be exercised
// against pgxmock in tests.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MembershipRepository answers whether a user belongs to an organization.
type MembershipRepository struct {
	db pgExecutor
	qb sq.StatementBuilderType
}

func NewMembershipRepository(db pgExecutor) *MembershipRepository {
	return &MembershipRepository{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// IsMember reports whether userID holds an active membership in the
// organization.
func (r *MembershipRepository) IsMember(ctx context.Context, userID, organizationID int64) (bool, error) {
	query, args, err := r.qb.
		Select("1").
		From("organization_members").
		Where(sq.Eq{
			"user_id":         userID,
			"organization_id": organizationID,
			"is_active":       true,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build membership query: %w", err)
	}

	var one int
	err = r.db.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}
