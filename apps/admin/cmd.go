package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/speddy/speddy/apps/shared"
	"github.com/speddy/speddy/core"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	app *shared.App
	db  *sql.DB // only set for migrate
	out io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME [-role ROLE] [-site SITE] [-district DISTRICT] - create or update a profile")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset a profile's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, redo...)")
	fmt.Fprintln(cli.out, "  seed -file FILE - load profiles, students and calendars from a YAML fixtures file")
	fmt.Fprintln(cli.out, "  materialize [-from YYYY-MM-DD] [-to YYYY-MM-DD] - generate dated sessions from weekly sessions")
	fmt.Fprintln(cli.out, "  digest [-week YYYY-MM-DD] - email providers their weekly schedule")
}

// readPassword prompts for a password twice.
func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}

func parseDateFlag(name, value string) (core.Date, error) {
	if value == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return core.Date{}, errors.Errorf("-%s must be formatted as YYYY-MM-DD (got %q)", name, value)
	}
	return d, nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The profile's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The profile's full name.")
	addUserRole := addUserCmd.String("role", "district_admin", "The profile's role.")
	addUserSite := addUserCmd.String("site", "", "The profile's school site.")
	addUserDistrict := addUserCmd.String("district", "", "The profile's school district.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The profile's email. The password will be prompted next.")

	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	seedFile := seedCmd.String("file", "", "Path to the YAML fixtures file.")

	materializeCmd := flag.NewFlagSet("materialize", flag.ExitOnError)
	materializeFrom := materializeCmd.String("from", "", "First date to generate (default today).")
	materializeTo := materializeCmd.String("to", "", "Last date to generate (default four weeks after -from).")

	digestCmd := flag.NewFlagSet("digest", flag.ExitOnError)
	digestWeek := digestCmd.String("week", "", "Any date of the week to send (default next week).")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			if err == errHelp {
				addUserCmd.Usage()
			}
			return err
		}
		return cli.addUser(*addUserEmail, *addUserName, *addUserRole, *addUserSite, *addUserDistrict, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			if err == errHelp {
				resetPasswordCmd.Usage()
			}
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(*seedFile)

	case "materialize":
		if err := materializeCmd.Parse(args[2:]); err != nil {
			return err
		}
		from, err := parseDateFlag("from", *materializeFrom)
		if err != nil {
			return err
		}
		to, err := parseDateFlag("to", *materializeTo)
		if err != nil {
			return err
		}
		return cli.materialize(from, to)

	case "digest":
		if err := digestCmd.Parse(args[2:]); err != nil {
			return err
		}
		week, err := parseDateFlag("week", *digestWeek)
		if err != nil {
			return err
		}
		return cli.digest(week)

	default:
		cli.printUsage()
		return errHelp
	}
}
