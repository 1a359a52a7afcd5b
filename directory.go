package cloak

import (
	"context"
	"strings"
)

// UserDirectory resolves principals. Lookups that find nothing must
// return ErrUserNotFound.
type UserDirectory interface {
	GetByPrimaryKey(ctx context.Context, id string) (Principal, error)
	GetByNaturalKey(ctx context.Context, key string) (Principal, error)
	FindFirst(ctx context.Context, q Query) (Principal, error)
}

// Field names a principal attribute a Query can filter or order on.
type Field string

const (
	FieldID        Field = "id"
	FieldEmail     Field = "email"
	FieldActive    Field = "is_active"
	FieldStaff     Field = "is_staff"
	FieldSuperuser Field = "is_superuser"
)

// Condition is an equality test on a field.
type Condition struct {
	Field Field
	Value any
}

// Order sorts on a field.
type Order struct {
	Field Field
	Desc  bool
}

// Query selects the first principal matching every condition, sorted by
// OrderBy.
type Query struct {
	Where   []Condition
	OrderBy []Order
}

// NewQuery returns an empty query.
func NewQuery() Query {
	return Query{}
}

// Eq adds an equality condition.
func (q Query) Eq(field Field, value any) Query {
	q.Where = append(append([]Condition(nil), q.Where...), Condition{Field: field, Value: value})
	return q
}

// Asc adds an ascending sort.
func (q Query) Asc(field Field) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field})
	return q
}

// Desc adds a descending sort.
func (q Query) Desc(field Field) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field, Desc: true})
	return q
}

// SuperusersQuery selects superusers by ascending id.
func SuperusersQuery() Query {
	return NewQuery().Eq(FieldSuperuser, true).Asc(FieldID)
}

// StaffQuery selects staff by ascending id.
func StaffQuery() Query {
	return NewQuery().Eq(FieldStaff, true).Asc(FieldID)
}

// AnyUserQuery selects every principal by ascending id.
func AnyUserQuery() Query {
	return NewQuery().Asc(FieldID)
}

// EmailQuery selects principals by email, active accounts first.
func EmailQuery(email string) Query {
	return NewQuery().Eq(FieldEmail, email).Desc(FieldActive).Asc(FieldID)
}

// loginTargetQueries is the priority order used when no identifier is
// given for a login link.
func loginTargetQueries() []Query {
	return []Query{
		SuperusersQuery(),
		StaffQuery(),
		AnyUserQuery(),
	}
}

// ResolvePrincipal finds a principal by primary key, then by email, then
// by natural key.
func ResolvePrincipal(ctx context.Context, dir UserDirectory, identifier string) (Principal, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	lookups := []func() (Principal, error){
		func() (Principal, error) { return dir.GetByPrimaryKey(ctx, identifier) },
		func() (Principal, error) { return dir.FindFirst(ctx, EmailQuery(identifier)) },
		func() (Principal, error) { return dir.GetByNaturalKey(ctx, identifier) },
	}

	for _, lookup := range lookups {
		p, err := lookup()
		if err != nil {
			if IsError(err, ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	return nil, ErrUserNotFound
}

// DefaultLoginTarget returns the first superuser, else the first staff
// member, else the first principal.
func DefaultLoginTarget(ctx context.Context, dir UserDirectory) (Principal, error) {
	for _, q := range loginTargetQueries() {
		p, err := dir.FindFirst(ctx, q)
		if err != nil {
			if IsError(err, ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	return nil, ErrNoUsersFound
}
