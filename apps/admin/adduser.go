package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/user"
)

// addUser updates or creates a profile. Admin profiles are granted their own site or district.
func (cli *commandLine) addUser(email, name, role, site, district, pwd string) error {
	ctx := context.Background()
	app := cli.app

	usr, err := app.UserSvc.GetByEmail(ctx, core.CleanString(email, true /* lower */))
	switch {
	case err == nil:
		active := true
		uu := user.UpdateUser{
			Name:            &name,
			Role:            &role,
			SchoolSite:      &site,
			SchoolDistrict:  &district,
			IsActive:        &active,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if err = uu.Validate(ctx, usr, app.Validate, app.UserSvc); err != nil {
			return err
		}
		if usr, err = app.UserSvc.Update(ctx, usr, uu); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "updated %s (%s)\n", usr.Email, usr.Role)
	case core.IsNotFound(err):
		nu := user.NewUser{
			Name:            name,
			Email:           email,
			Role:            role,
			SchoolSite:      site,
			SchoolDistrict:  district,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if err = nu.Validate(ctx, app.Validate, app.UserSvc); err != nil {
			return err
		}
		if usr, err = app.UserSvc.Create(ctx, nu); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s (%s)\n", usr.Email, usr.Role)
	default:
		return err
	}

	if !usr.IsAdmin() {
		return nil
	}
	return cli.grantOwnScope(ctx, usr)
}

// grantOwnScope gives an admin the permission matching its profile unless it already has it.
func (cli *commandLine) grantOwnScope(ctx context.Context, usr user.User) error {
	perm := school.AdminPermission{AdminID: usr.ID, Role: usr.Role, CreatedAt: time.Now().UTC()}
	if usr.Role == user.RoleDistrictAdmin {
		perm.SchoolDistrict = usr.SchoolDistrict
	} else {
		perm.SchoolSite = usr.SchoolSite
		perm.SchoolDistrict = usr.SchoolDistrict
	}
	if perm.SchoolSite == "" && perm.SchoolDistrict == "" {
		return nil
	}

	perms, err := cli.app.Schools.QueryPermissions(ctx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying permissions")
	}
	for _, p := range perms {
		if p.Role == perm.Role && p.SchoolSite == perm.SchoolSite && p.SchoolDistrict == perm.SchoolDistrict {
			return nil
		}
	}
	if _, err = cli.app.Schools.CreatePermission(ctx, perm); err != nil {
		return errors.Wrap(err, "granting permission")
	}
	return nil
}
