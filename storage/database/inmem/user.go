package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) all() []user.User {
	users := make([]user.User, 0, len(repo.db.user.table))
	for _, u := range repo.db.user.table {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedIDs []int, _ ...core.DBExecutor) error {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	excluded := make(map[int]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, usr := range repo.db.user.table {
		if strings.EqualFold(usr.Email, email) && !excluded[usr.ID] {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	for _, u := range repo.db.user.table {
		if strings.EqualFold(u.Email, usr.Email) {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.user.pk++
	usr.ID = repo.db.user.pk
	repo.db.user.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.user.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.user.table {
			if strings.EqualFold(usr.Email, filter.Email) {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page core.Page, _ ...core.DBExecutor) ([]user.User, int, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.all() {
		if filter == nil || filter.Match(usr) {
			users = append(users, usr)
		}
	}

	ordering = core.CleanOrderings(ordering, user.OrderingFields)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})

	count := len(users)
	start := page.Offset()
	if start > count {
		start = count
	}
	end := start + page.Size
	if end > count || page.Size <= 0 {
		end = count
	}
	return users[start:end], count, nil
}

func compareUsers(a, b user.User, col string) int {
	switch col {
	case "id":
		return a.ID - b.ID
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "last_login":
		return a.LastLogin.Compare(b.LastLogin)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (repo *userRepository) CountUsers(_ context.Context, _ ...core.DBExecutor) (user.Counts, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	var counts user.Counts
	for _, usr := range repo.db.user.table {
		counts.Total++
		if usr.IsActive {
			counts.Active++
		} else {
			counts.Inactive++
		}
		if usr.CanAccessAdmin() {
			counts.Admins++
		}
	}
	return counts, nil
}

func (repo *userRepository) ListActiveUserIDs(_ context.Context, _ ...core.DBExecutor) ([]int, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	ids := make([]int, 0, len(repo.db.user.table))
	for _, usr := range repo.all() {
		if usr.IsActive {
			ids = append(ids, usr.ID)
		}
	}
	return ids, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	if _, ok := repo.db.user.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.user.table[usr.ID] = &usr
	return usr, nil
}

// DeleteUsers removes the users along with their favorites, passes and notifications.
// Their validations are kept without the user link.
func (repo *userRepository) DeleteUsers(_ context.Context, ids []int, _ ...core.DBExecutor) error {
	deleted := make(map[int]bool, len(ids))

	repo.db.user.Lock()
	for _, id := range ids {
		delete(repo.db.user.table, id)
		deleted[id] = true
	}
	repo.db.user.Unlock()

	repo.db.favorite.Lock()
	for k := range repo.db.favorite.table {
		if deleted[k.userID] {
			delete(repo.db.favorite.table, k)
		}
	}
	repo.db.favorite.Unlock()

	repo.db.pass.Lock()
	for id, p := range repo.db.pass.table {
		if deleted[p.UserID] {
			delete(repo.db.pass.table, id)
		}
	}
	repo.db.pass.Unlock()

	repo.db.validation.Lock()
	for i, v := range repo.db.validation.table {
		if v.UserID != nil && deleted[*v.UserID] {
			repo.db.validation.table[i].UserID = nil
			repo.db.validation.table[i].PassID = nil
		}
		if v.ValidatorID != nil && deleted[*v.ValidatorID] {
			repo.db.validation.table[i].ValidatorID = nil
		}
	}
	repo.db.validation.Unlock()

	repo.db.notification.Lock()
	for id, n := range repo.db.notification.table {
		if deleted[n.UserID] {
			delete(repo.db.notification.table, id)
		}
	}
	repo.db.notification.Unlock()
	return nil
}
