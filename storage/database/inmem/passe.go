package inmemdb

import (
	"context"
	"time"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/passe"
)

type passeRepository struct {
	db *DB
}

var _ passe.Repository = (*passeRepository)(nil) // interface compliance check

func NewPasseRepository(db *DB) passe.Repository {
	return &passeRepository{db: db}
}

func (repo *passeRepository) GetPass(_ context.Context, filter passe.GetFilter, _ ...core.DBExecutor) (passe.Pass, error) {
	repo.db.pass.RLock()
	defer repo.db.pass.RUnlock()

	for _, p := range repo.db.pass.table {
		if (filter.UserID != 0 && p.UserID == filter.UserID) || (filter.Code != "" && p.Code == filter.Code) {
			return *p, nil
		}
	}
	return passe.Pass{}, passe.ErrPassNotFound
}

func (repo *passeRepository) CreatePass(_ context.Context, p passe.Pass, _ ...core.DBExecutor) (passe.Pass, error) {
	repo.db.pass.Lock()
	defer repo.db.pass.Unlock()

	repo.db.pass.pk++
	p.ID = repo.db.pass.pk
	repo.db.pass.table[p.ID] = &p
	return p, nil
}

func (repo *passeRepository) UpdatePass(_ context.Context, p passe.Pass, _ ...core.DBExecutor) (passe.Pass, error) {
	repo.db.pass.Lock()
	defer repo.db.pass.Unlock()

	if _, ok := repo.db.pass.table[p.ID]; !ok {
		return passe.Pass{}, passe.ErrPassNotFound
	}
	repo.db.pass.table[p.ID] = &p
	return p, nil
}

func (repo *passeRepository) RotateCode(_ context.Context, passID int, oldCode, newCode string, now time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.pass.Lock()
	defer repo.db.pass.Unlock()

	p, ok := repo.db.pass.table[passID]
	if !ok || !p.Active || p.Code != oldCode {
		return false, nil
	}
	rotated := *p
	rotated.Code = newCode
	rotated.UpdatedAt = now
	repo.db.pass.table[passID] = &rotated
	return true, nil
}

// DeletePasses deletes every pass. Validations lose their pass link.
func (repo *passeRepository) DeletePasses(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.pass.Lock()
	n := len(repo.db.pass.table)
	repo.db.pass.table = make(map[int]*passe.Pass)
	repo.db.pass.Unlock()

	repo.db.validation.Lock()
	for i := range repo.db.validation.table {
		repo.db.validation.table[i].PassID = nil
	}
	repo.db.validation.Unlock()
	return n, nil
}

func (repo *passeRepository) CreateValidation(_ context.Context, v passe.Validation, _ ...core.DBExecutor) (passe.Validation, error) {
	repo.db.validation.Lock()
	defer repo.db.validation.Unlock()

	repo.db.validation.pk++
	v.ID = repo.db.validation.pk
	repo.db.validation.table = append(repo.db.validation.table, v)
	return v, nil
}

func (repo *passeRepository) ListValidations(_ context.Context, filter passe.ValidationFilter, _ ...core.DBExecutor) ([]passe.Validation, error) {
	repo.db.validation.RLock()
	defer repo.db.validation.RUnlock()

	vals := make([]passe.Validation, 0)
	// newest first: the table is append only
	for i := len(repo.db.validation.table) - 1; i >= 0; i-- {
		v := repo.db.validation.table[i]
		if filter.UserID != 0 && (v.UserID == nil || *v.UserID != filter.UserID) {
			continue
		}
		if filter.ValidOnly && !v.Valid {
			continue
		}
		if !filter.Since.IsZero() && v.ValidatedAt.Before(filter.Since) {
			continue
		}
		vals = append(vals, v)
		if filter.Limit > 0 && len(vals) == filter.Limit {
			break
		}
	}
	return vals, nil
}

func (repo *passeRepository) CountValidations(_ context.Context, since time.Time, _ ...core.DBExecutor) (passe.Counts, error) {
	repo.db.validation.RLock()
	defer repo.db.validation.RUnlock()

	var counts passe.Counts
	for _, v := range repo.db.validation.table {
		if v.ValidatedAt.Before(since) {
			continue
		}
		counts.Total++
		if v.Valid {
			counts.Valid++
		} else {
			counts.Invalid++
		}
	}
	return counts, nil
}
