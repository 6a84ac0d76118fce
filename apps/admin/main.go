package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/speddy/speddy/apps/shared"
	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/user"
	logsvc "github.com/speddy/speddy/services/logger"
	"github.com/speddy/speddy/storage/database"
)

var logger core.Logger

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.Conf
	logger = logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	cli := commandLine{out: os.Stdout}

	// migrate works on the raw database; everything else runs on the application
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := database.CreateIfNotExist(conf); err != nil {
			logger.Error(fmt.Sprintf("creating database: %v", err), err)
			return 1
		}
		db, err := database.Open(conf)
		if err != nil {
			logger.Error(fmt.Sprintf("opening database: %v", err), err)
			return 1
		}
		defer db.Close()
		cli.db = db.DB
	} else if len(os.Args) > 1 {
		app, closeApp, err := shared.Open(context.Background(), conf, logger)
		if err != nil {
			logger.Error(fmt.Sprintf("setting up application: %v", err), err)
			return 1
		}
		defer closeApp()
		cli.app = app

		core.ParseEmailTemplates(logger)
		user.LoadCommonPasswords(logger)
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		return 1
	}
	return 0
}
