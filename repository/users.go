package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

var _ cloak.UserDirectory = (*Users)(nil)

// Users is a cloak.UserDirectory backed by the users table.
type Users struct {
	db         bun.IDB
	capability CapabilityProvider
}

// UsersOption configures Users.
type UsersOption func(*Users)

// WithCapabilityProvider attaches cloak rules to every loaded user.
func WithCapabilityProvider(p CapabilityProvider) UsersOption {
	return func(u *Users) {
		u.capability = p
	}
}

// NewUsers returns a directory reading from db.
func NewUsers(db bun.IDB, opts ...UsersOption) *Users {
	u := &Users{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

// Create inserts record.
func (a *Users) Create(ctx context.Context, record *User) (*User, error) {
	if _, err := a.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create user")
	}
	return record, nil
}

// Delete removes the user with id.
func (a *Users) Delete(ctx context.Context, id int64) error {
	_, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

// GetByPrimaryKey implements cloak.UserDirectory.
func (a *Users) GetByPrimaryKey(ctx context.Context, id string) (cloak.Principal, error) {
	pk, ok := parseID(strings.TrimSpace(id))
	if !ok {
		return nil, cloak.ErrUserNotFound
	}
	return a.first(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", pk)
	})
}

// GetByNaturalKey implements cloak.UserDirectory. The natural key is the
// username.
func (a *Users) GetByNaturalKey(ctx context.Context, key string) (cloak.Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, cloak.ErrUserNotFound
	}
	return a.first(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.username = ?", key)
	})
}

// FindFirst implements cloak.UserDirectory.
func (a *Users) FindFirst(ctx context.Context, query cloak.Query) (cloak.Principal, error) {
	for _, c := range query.Where {
		if _, ok := columns[c.Field]; !ok {
			return nil, errors.New(fmt.Sprintf("unsupported field %q", c.Field), errors.CategoryBadInput)
		}
	}
	for _, o := range query.OrderBy {
		if _, ok := columns[o.Field]; !ok {
			return nil, errors.New(fmt.Sprintf("unsupported field %q", o.Field), errors.CategoryBadInput)
		}
	}

	return a.first(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, c := range query.Where {
			q = q.Where(fmt.Sprintf("?TableAlias.%s = ?", columns[c.Field]), c.Value)
		}
		for _, o := range query.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			q = q.OrderExpr(fmt.Sprintf("?TableAlias.%s %s", columns[o.Field], dir))
		}
		return q
	})
}

func (a *Users) first(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) (cloak.Principal, error) {
	record := &User{}
	q := apply(a.db.NewSelect().Model(record))

	if err := q.Limit(1).Scan(ctx); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, cloak.ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query users")
	}

	if a.capability != nil {
		record.capability = a.capability(record)
	}

	return record, nil
}
