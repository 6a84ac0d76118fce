// Package shared wires the repositories and services the API server and the admin CLI run on.
package shared

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
	"github.com/speddy/speddy/core/attendance"
	"github.com/speddy/speddy/core/schedule"
	"github.com/speddy/speddy/core/school"
	"github.com/speddy/speddy/core/student"
	"github.com/speddy/speddy/core/user"
	cachesvc "github.com/speddy/speddy/services/cache"
	emailsvc "github.com/speddy/speddy/services/email"
	"github.com/speddy/speddy/storage/database"
	inmemdb "github.com/speddy/speddy/storage/database/inmem"
	sqlxrepos "github.com/speddy/speddy/storage/database/sqlx"
)

const (
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

type (
	// Stores groups the repositories of one storage engine.
	Stores struct {
		Tx         core.Transactor
		Users      user.Repository
		Schools    school.Repository
		Students   student.Repository
		Schedules  schedule.Repository
		Attendance attendance.Repository
	}

	App struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Cache      core.Cache
		Mail       core.EmailService
		Stores

		UserSvc       user.Service
		SchoolSvc     school.Service
		StudentSvc    student.Service
		ScheduleSvc   schedule.Service
		AttendanceSvc attendance.Service
	}
)

// NewValidator returns a validator with the validators of every domain package registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	schedule.InitValidators(validate, translator)
	return validate, translator
}

func MemoryStores(db *inmemdb.DB) Stores {
	return Stores{
		Tx:         db,
		Users:      inmemdb.NewUserRepository(db),
		Schools:    inmemdb.NewSchoolRepository(db),
		Students:   inmemdb.NewStudentRepository(db),
		Schedules:  inmemdb.NewScheduleRepository(db),
		Attendance: inmemdb.NewAttendanceRepository(db),
	}
}

func PostgresStores(db *sqlx.DB) Stores {
	return Stores{
		Tx:         database.NewTransactor(db),
		Users:      sqlxrepos.NewUserRepository(db),
		Schools:    sqlxrepos.NewSchoolRepository(db),
		Students:   sqlxrepos.NewStudentRepository(db),
		Schedules:  sqlxrepos.NewScheduleRepository(db),
		Attendance: sqlxrepos.NewAttendanceRepository(db),
	}
}

// NewApp builds the services on top of stores.
func NewApp(conf *core.Config, logger core.Logger, stores Stores, cache core.Cache, mail core.EmailService) *App {
	validate, translator := NewValidator()
	app := &App{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Cache:      cache,
		Mail:       mail,
		Stores:     stores,
	}

	app.UserSvc = user.NewService(stores.Users, cache)
	app.SchoolSvc = school.NewService(stores.Schools, stores.Users, cache)
	app.StudentSvc = student.NewService(stores.Students, stores.Users, cache, validate)
	app.ScheduleSvc = schedule.NewService(
		stores.Schedules, stores.Students, stores.Users, stores.Tx, cache, validate,
		schedule.Options{
			MaxConcurrent:         conf.Schedule.MaxConcurrent,
			DefaultSessionMinutes: conf.Schedule.DefaultSessionMinutes,
			Location:              conf.Schedule.Location(),
			CacheTTL:              conf.Redis.TTL,
		},
	)
	app.AttendanceSvc = attendance.NewService(stores.Attendance, app.ScheduleSvc, stores.Students, stores.Tx, validate)
	return app
}

// Open connects the configured storage engine, cache and mailer. The returned func releases them.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*App, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("closing resource", err)
			}
		}
	}

	var stores Stores
	switch conf.Database.Engine {
	case EngineMemory:
		stores = MemoryStores(inmemdb.NewDB())
	case EnginePostgres, "":
		db, err := OpenPostgres(conf)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		stores = PostgresStores(db)
	default:
		return nil, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	var cache core.Cache
	if conf.Redis.Address != "" {
		rc, err := cachesvc.NewRedisCache(ctx, conf)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, rc.Close)
		cache = rc
	} else {
		cache = cachesvc.NewMemoryCache()
	}

	var mail core.EmailService
	if conf.Debug || conf.TestMode || conf.SendgridApiKey == "" {
		mail = emailsvc.NewConsoleService(conf, logger, log.New(os.Stdout, "EMAIL : ", log.LstdFlags))
	} else {
		mail = emailsvc.NewSendgridService(conf, logger)
	}

	return NewApp(conf, logger, stores, cache, mail), closeAll, nil
}

// OpenPostgres creates the database if needed, connects and applies pending migrations.
func OpenPostgres(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return db, nil
}
