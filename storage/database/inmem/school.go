package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/speddy/speddy/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreatePermission(_ context.Context, perm school.AdminPermission) (school.AdminPermission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	perm.ID = uuid.New().String()
	repo.db.t.permissions[perm.ID] = perm
	return perm, nil
}

func (repo *schoolRepository) QueryPermissions(_ context.Context, adminID string) ([]school.AdminPermission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	perms := make([]school.AdminPermission, 0)
	for _, p := range repo.db.t.permissions {
		if adminID == "" || p.AdminID == adminID {
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		if !perms[i].CreatedAt.Equal(perms[j].CreatedAt) {
			return perms[i].CreatedAt.Before(perms[j].CreatedAt)
		}
		return perms[i].ID < perms[j].ID
	})
	return perms, nil
}

func (repo *schoolRepository) GetPermission(_ context.Context, id string) (school.AdminPermission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.t.permissions[id]; ok {
		return p, nil
	}
	return school.AdminPermission{}, school.ErrNotFound
}

func (repo *schoolRepository) DeletePermission(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.permissions[id]; !ok {
		return school.ErrNotFound
	}
	delete(repo.db.t.permissions, id)
	return nil
}
