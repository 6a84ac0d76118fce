package school_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/user"
	cachesvc "github.com/speddy/speddy/services/cache"
	inmemdb "github.com/speddy/speddy/storage/database/inmem"
)

func TestService_GrantRevokeBumpsScheduleGeneration(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.NewDB()
	cache := cachesvc.NewMemoryCache()
	users := inmemdb.NewUserRepository(db)
	svc := school.NewService(inmemdb.NewSchoolRepository(db), users, cache)
	validate, _ := core.NewValidator()

	district, err := users.CreateUser(ctx, user.User{Name: "Dana", Email: "dana@unified.edu", Role: user.RoleDistrictAdmin, SchoolDistrict: "Unified"})
	require.NoError(t, err)
	site, err := users.CreateUser(ctx, user.User{Name: "Sam", Email: "sam@unified.edu", Role: user.RoleSiteAdmin, SchoolSite: "Lincoln", SchoolDistrict: "Unified"})
	require.NoError(t, err)
	granter := school.Viewer{User: district, Scope: school.Scope{Districts: []string{"Unified"}}}

	generation := func() int64 {
		n, err := cache.Incr(ctx, core.ScheduleGenerationKey)
		require.NoError(t, err)
		return n
	}

	before := generation()
	perm, err := svc.Grant(ctx, granter, school.NewPermission{AdminID: site.ID, Role: user.RoleSiteAdmin, SchoolSite: "Lincoln", SchoolDistrict: "Unified"}, validate)
	require.NoError(t, err)
	assert.Equal(t, before+2, generation(), "grant invalidates cached schedules")

	v, err := svc.Viewer(ctx, site)
	require.NoError(t, err)
	assert.True(t, v.Manages("Lincoln", ""))

	before = generation()
	require.NoError(t, svc.Revoke(ctx, granter, perm.ID))
	assert.Equal(t, before+2, generation(), "revoke invalidates cached schedules")

	before = generation()
	assert.Error(t, svc.Revoke(ctx, granter, perm.ID))
	assert.Equal(t, before+1, generation(), "failed revoke leaves the generation alone")
}
