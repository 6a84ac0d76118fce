package main

import (
	"context"

	"github.com/speddy/speddy/core"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.app.UserSvc.SetPassword(context.Background(), core.CleanString(email, true /* lower */), pwd)
}
