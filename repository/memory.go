package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	cloak "github.com/goliatone/go-cloak"
	"github.com/goliatone/go-errors"
)

var _ cloak.UserDirectory = (*MemoryUsers)(nil)

// MemoryUsers is an in memory cloak.UserDirectory, handy for tests and
// tools that do not need a database.
type MemoryUsers struct {
	mu         sync.RWMutex
	users      map[int64]*User
	nextID     int64
	capability CapabilityProvider
}

// NewMemoryUsers returns a directory seeded with users. Users with a zero
// ID get the next free one.
func NewMemoryUsers(users ...*User) *MemoryUsers {
	m := &MemoryUsers{users: map[int64]*User{}}
	for _, u := range users {
		m.Add(u)
	}
	return m
}

// WithCapabilityProvider attaches cloak rules to every returned user.
func (m *MemoryUsers) WithCapabilityProvider(p CapabilityProvider) *MemoryUsers {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capability = p
	return m
}

// Add stores u, replacing any user with the same id.
func (m *MemoryUsers) Add(u *User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == 0 {
		m.nextID++
		u.ID = m.nextID
	}
	if u.ID > m.nextID {
		m.nextID = u.ID
	}
	m.users[u.ID] = u
	return u
}

// Remove deletes the user with id.
func (m *MemoryUsers) Remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

// GetByPrimaryKey implements cloak.UserDirectory.
func (m *MemoryUsers) GetByPrimaryKey(_ context.Context, id string) (cloak.Principal, error) {
	pk, ok := parseID(strings.TrimSpace(id))
	if !ok {
		return nil, cloak.ErrUserNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[pk]
	if !ok {
		return nil, cloak.ErrUserNotFound
	}
	return m.principal(u), nil
}

// GetByNaturalKey implements cloak.UserDirectory.
func (m *MemoryUsers) GetByNaturalKey(_ context.Context, key string) (cloak.Principal, error) {
	key = strings.TrimSpace(key)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if key != "" && u.Username == key {
			return m.principal(u), nil
		}
	}
	return nil, cloak.ErrUserNotFound
}

// FindFirst implements cloak.UserDirectory.
func (m *MemoryUsers) FindFirst(_ context.Context, q cloak.Query) (cloak.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		ok, err := matchAll(u, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, u)
		}
	}

	if len(matches) == 0 {
		return nil, cloak.ErrUserNotFound
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return less(matches[i], matches[j], q.OrderBy)
	})

	return m.principal(matches[0]), nil
}

func (m *MemoryUsers) principal(u *User) *User {
	cp := *u
	if m.capability != nil {
		cp.capability = m.capability(&cp)
	}
	return &cp
}

func matchAll(u *User, conds []cloak.Condition) (bool, error) {
	for _, c := range conds {
		v, ok := field(u, c.Field)
		if !ok {
			return false, errors.New(fmt.Sprintf("unsupported field %q", c.Field), errors.CategoryBadInput)
		}
		if fmt.Sprint(v) != fmt.Sprint(c.Value) {
			return false, nil
		}
	}
	return true, nil
}

// less orders by the given fields and breaks ties on id so results are
// deterministic regardless of map iteration order.
func less(a, b *User, orders []cloak.Order) bool {
	for _, o := range orders {
		av, _ := field(a, o.Field)
		bv, _ := field(b, o.Field)
		c := compare(av, bv)
		if c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return a.ID < b.ID
}

func compare(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}
