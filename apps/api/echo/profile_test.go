package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/speddy/speddy/apps/api/echo"
	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
)

func ids(users []user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func Test_profileApi_query(t *testing.T) {
	fx := seed(t)

	tests := []struct {
		name     string
		path     string
		usr      *user.User
		wantCode int
		want     []user.User
	}{
		{name: "auth required", path: "/v1/profiles", wantCode: http.StatusUnauthorized},
		{name: "admin required", path: "/v1/profiles", usr: &fx.provider, wantCode: http.StatusForbidden},
		{
			name: "site admin sees its site", path: "/v1/profiles", usr: &fx.siteAdmin, wantCode: http.StatusOK,
			want: []user.User{fx.sea, fx.teacher, fx.provider, fx.siteAdmin},
		},
		{
			name: "district admin sees its district", path: "/v1/profiles?ordering=email", usr: &fx.districtAdmin, wantCode: http.StatusOK,
			want: []user.User{fx.sea, fx.districtAdmin, fx.teacher, fx.provider, fx.otherProvider, fx.siteAdmin},
		},
		{name: "role filter", path: "/v1/profiles?role=sea,teacher", usr: &fx.siteAdmin, wantCode: http.StatusOK, want: []user.User{fx.sea, fx.teacher}},
		{name: "search", path: "/v1/profiles?search=pat", usr: &fx.siteAdmin, wantCode: http.StatusOK, want: []user.User{fx.provider}},
		{name: "bad is_active", path: "/v1/profiles?is_active=maybe", usr: &fx.siteAdmin, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodGet, tt.path, nil, tt.usr)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var got []user.User
			decode(t, rec, &got)
			assert.Equal(t, ids(tt.want), ids(got))
		})
	}
}

func Test_profileApi_create(t *testing.T) {
	fx := seed(t)

	newProfile := func(email, role, site string, students ...student.NewStudent) CreateProfileRequest {
		return CreateProfileRequest{
			NewUser: user.NewUser{
				Name:            "New Hire",
				Email:           email,
				Role:            role,
				SchoolSite:      site,
				SchoolDistrict:  "Unified",
				Password:        testPassword,
				PasswordConfirm: testPassword,
			},
			Students: students,
		}
	}
	caseload := []student.NewStudent{
		{Initials: "a.b.", GradeLevel: "k", SessionsPerWeek: 2, MinutesPerSession: 20},
		{Initials: "CD", GradeLevel: "3", TeacherName: "Ms Frizzle", SessionsPerWeek: 1, MinutesPerSession: 45},
	}

	t.Run("with caseload", func(t *testing.T) {
		rec := do(t, http.MethodPost, "/v1/profiles", newProfile("ot@unified.edu", user.RoleOT, "Lincoln", caseload...), &fx.siteAdmin)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got CreateProfileResponse
		decode(t, rec, &got)
		assert.Equal(t, "ot@unified.edu", got.Email)
		require.Len(t, got.Students, 2)
		for _, st := range got.Students {
			assert.Equal(t, got.ID, st.ProviderID)
			assert.Equal(t, "Lincoln", st.SchoolSite)
		}
		assert.Equal(t, "AB", got.Students[0].Initials)
		assert.Equal(t, "K", got.Students[0].GradeLevel)
	})

	t.Run("invalid caseload rolls back the profile", func(t *testing.T) {
		before, err := app.Students.QueryStudents(context.Background(), student.QueryFilter{})
		require.NoError(t, err)

		bad := append([]student.NewStudent{}, caseload[0], student.NewStudent{Initials: "EF", GradeLevel: "Z", SessionsPerWeek: 1, MinutesPerSession: 30})
		rec := do(t, http.MethodPost, "/v1/profiles", newProfile("rollback@unified.edu", user.RoleOT, "Lincoln", bad...), &fx.siteAdmin)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		_, err = app.UserSvc.GetByEmail(context.Background(), "rollback@unified.edu")
		assert.True(t, core.IsNotFound(err), "profile must not survive: %v", err)
		after, err := app.Students.QueryStudents(context.Background(), student.QueryFilter{})
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	runCodeTests(t, []httpTest{
		{name: "admin required", method: http.MethodPost, path: "/v1/profiles", body: newProfile("x@unified.edu", user.RoleSEA, "Lincoln"), usr: &fx.provider, wantCode: http.StatusForbidden},
		{name: "role above own", method: http.MethodPost, path: "/v1/profiles", body: newProfile("x@unified.edu", user.RoleDistrictAdmin, "Lincoln"), usr: &fx.siteAdmin, wantCode: http.StatusBadRequest},
		{name: "unmanaged site", method: http.MethodPost, path: "/v1/profiles", body: newProfile("x@unified.edu", user.RoleSEA, "Washington"), usr: &fx.siteAdmin, wantCode: http.StatusForbidden},
		{name: "duplicate email", method: http.MethodPost, path: "/v1/profiles", body: newProfile(fx.sea.Email, user.RoleSEA, "Lincoln"), usr: &fx.siteAdmin, wantCode: http.StatusBadRequest},
		{name: "weak password", method: http.MethodPost, path: "/v1/profiles", body: CreateProfileRequest{NewUser: user.NewUser{
			Name: "Weak", Email: "weak@unified.edu", Role: user.RoleSEA, SchoolSite: "Lincoln", Password: "password", PasswordConfirm: "password",
		}}, usr: &fx.siteAdmin, wantCode: http.StatusBadRequest},
	})
}

func Test_profileApi_update(t *testing.T) {
	fx := seed(t)
	sPtr := func(s string) *string { return &s }
	bPtr := func(b bool) *bool { return &b }

	runCodeTests(t, []httpTest{
		{name: "own name", method: http.MethodPut, path: "/v1/profiles/" + fx.provider.ID, body: user.UpdateUser{Name: sPtr("Pat R.")}, usr: &fx.provider, wantCode: http.StatusOK},
		{name: "own role", method: http.MethodPut, path: "/v1/profiles/" + fx.provider.ID, body: user.UpdateUser{Role: sPtr(user.RoleSiteAdmin)}, usr: &fx.provider, wantCode: http.StatusForbidden},
		{name: "own activation", method: http.MethodPut, path: "/v1/profiles/" + fx.provider.ID, body: user.UpdateUser{IsActive: bPtr(false)}, usr: &fx.provider, wantCode: http.StatusForbidden},
		{name: "someone else", method: http.MethodPut, path: "/v1/profiles/" + fx.sea.ID, body: user.UpdateUser{Name: sPtr("X")}, usr: &fx.provider, wantCode: http.StatusNotFound},
		{name: "unmanaged site", method: http.MethodGet, path: "/v1/profiles/" + fx.otherProvider.ID, usr: &fx.siteAdmin, wantCode: http.StatusNotFound},
		{name: "unknown", method: http.MethodGet, path: "/v1/profiles/unknown", usr: &fx.siteAdmin, wantCode: http.StatusNotFound},
		{name: "role above own", method: http.MethodPut, path: "/v1/profiles/" + fx.sea.ID, body: user.UpdateUser{Role: sPtr(user.RoleDistrictAdmin)}, usr: &fx.siteAdmin, wantCode: http.StatusBadRequest},
		{name: "own site as sea", method: http.MethodPut, path: "/v1/profiles/" + fx.sea.ID, body: user.UpdateUser{SchoolSite: sPtr("Washington")}, usr: &fx.sea, wantCode: http.StatusForbidden},
		{name: "own site as provider", method: http.MethodPut, path: "/v1/profiles/" + fx.provider.ID, body: user.UpdateUser{SchoolSite: sPtr("Washington")}, usr: &fx.provider, wantCode: http.StatusForbidden},
		{name: "own district", method: http.MethodPut, path: "/v1/profiles/" + fx.provider.ID, body: user.UpdateUser{SchoolDistrict: sPtr("Other")}, usr: &fx.provider, wantCode: http.StatusForbidden},
		{name: "unchanged site", method: http.MethodPut, path: "/v1/profiles/" + fx.provider.ID, body: user.UpdateUser{SchoolSite: sPtr("Lincoln")}, usr: &fx.provider, wantCode: http.StatusOK},
		{name: "site outside admin scope", method: http.MethodPut, path: "/v1/profiles/" + fx.sea.ID, body: user.UpdateUser{SchoolSite: sPtr("Washington")}, usr: &fx.siteAdmin, wantCode: http.StatusForbidden},
	})

	rec := do(t, http.MethodPut, "/v1/profiles/"+fx.sea.ID, user.UpdateUser{SchoolSite: sPtr("Washington")}, &fx.districtAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var moved user.User
	decode(t, rec, &moved)
	assert.Equal(t, "Washington", moved.SchoolSite)
	rec = do(t, http.MethodPut, "/v1/profiles/"+fx.sea.ID, user.UpdateUser{SchoolSite: sPtr("Lincoln")}, &fx.districtAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, http.MethodPut, "/v1/profiles/"+fx.sea.ID, user.UpdateUser{IsActive: bPtr(false)}, &fx.siteAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got user.User
	decode(t, rec, &got)
	assert.False(t, got.Active())

	rec = do(t, http.MethodGet, "/v1/profiles/"+fx.provider.ID, nil, &fx.provider)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, "Pat R.", got.Name)
}

func Test_profileApi_destroy(t *testing.T) {
	fx := seed(t)

	runCodeTests(t, []httpTest{
		{name: "self", method: http.MethodDelete, path: "/v1/profiles/" + fx.siteAdmin.ID, usr: &fx.siteAdmin, wantCode: http.StatusForbidden},
		{name: "higher role", method: http.MethodDelete, path: "/v1/profiles/" + fx.districtAdmin.ID, usr: &fx.siteAdmin, wantCode: http.StatusNotFound},
		{name: "not admin", method: http.MethodDelete, path: "/v1/profiles/" + fx.provider.ID, usr: &fx.provider, wantCode: http.StatusForbidden},
		{name: "managed", method: http.MethodDelete, path: "/v1/profiles/" + fx.sea.ID, usr: &fx.siteAdmin, wantCode: http.StatusNoContent},
		{name: "multiple with self", method: http.MethodDelete, path: "/v1/profiles?id=" + fx.teacher.ID + "&id=" + fx.districtAdmin.ID, usr: &fx.districtAdmin, wantCode: http.StatusForbidden},
		{name: "multiple", method: http.MethodDelete, path: "/v1/profiles?id=" + fx.teacher.ID + "&id=" + fx.otherProvider.ID, usr: &fx.districtAdmin, wantCode: http.StatusNoContent},
	})

	users, err := app.UserSvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids([]user.User{fx.districtAdmin, fx.siteAdmin, fx.provider}), ids(users))
}
