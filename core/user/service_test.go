package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/user"
	cachesvc "github.com/speddy/speddy/services/cache"
	inmemdb "github.com/speddy/speddy/storage/database/inmem"
)

func TestService_ChangesBumpScheduleGeneration(t *testing.T) {
	ctx := context.Background()
	cache := cachesvc.NewMemoryCache()
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	svc := user.NewService(repo, cache)

	generation := func() int64 {
		n, err := cache.Incr(ctx, core.ScheduleGenerationKey)
		require.NoError(t, err)
		return n
	}

	usr, err := repo.CreateUser(ctx, user.User{Name: "Terry Teacher", Email: "terry@unified.edu", Role: user.RoleTeacher, SchoolSite: "Lincoln"})
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "update", run: func() error {
			name := "Terry T."
			_, err := svc.Update(ctx, usr, user.UpdateUser{Name: &name})
			return err
		}},
		{name: "delete", run: func() error { return svc.Delete(ctx, usr.ID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := generation()
			require.NoError(t, tt.run())
			assert.Equal(t, before+2, generation())
		})
	}
}
