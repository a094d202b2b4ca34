package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	echoapi "github.com/trezcool/kilabu/apps/api/echo"
	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	db     *sql.DB // nil when the memory store is configured
	svc    *attendance.Service
	out    io.Writer
	logger core.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, ...) against the database")
	fmt.Fprintln(cli.out, "  sessions [-group ID] [-trainer ID] [-branch ID] [-date YYYY-MM-DD] [-search TEXT] - list attendance sessions")
	fmt.Fprintln(cli.out, "  token -subject ID -username NAME -role admin|trainer|viewer - issue an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	sessionsCmd := flag.NewFlagSet("sessions", flag.ContinueOnError)
	sessionsCmd.SetOutput(cli.out)
	sessionsGroup := sessionsCmd.String("group", "", "Only sessions of this group ID.")
	sessionsTrainer := sessionsCmd.String("trainer", "", "Only sessions of this trainer ID.")
	sessionsBranch := sessionsCmd.String("branch", "", "Only sessions of this branch ID.")
	sessionsDate := sessionsCmd.String("date", "", "Only sessions held on this day (YYYY-MM-DD).")
	sessionsSearch := sessionsCmd.String("search", "", "Only sessions whose group, trainer or branch name contains this text.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenSubject := tokenCmd.String("subject", "", "The caller's user ID.")
	tokenUsername := tokenCmd.String("username", "", "The caller's username.")
	tokenRole := tokenCmd.String("role", echoapi.RoleViewer, "One of admin, trainer or viewer.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "sessions":
		if err := sessionsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.listSessions(*sessionsGroup, *sessionsTrainer, *sessionsBranch, *sessionsDate, *sessionsSearch)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenSubject == "" || *tokenUsername == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*tokenSubject, *tokenUsername, *tokenRole)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) listSessions(groupID, trainerID, branchID, day, search string) error {
	sf := attendance.SessionFilter{Search: search}
	if day != "" {
		date, err := attendance.ParseDay(day, cli.svc.Location())
		if err != nil {
			return fmt.Errorf("invalid date %q: expected format YYYY-MM-DD", day)
		}
		sf.Date = date
	}
	sf.Clean()

	q := attendance.NewQuery().
		Where(attendance.FieldGroupID, core.CleanString(groupID)).
		Where(attendance.FieldTrainerID, core.CleanString(trainerID)).
		Where(attendance.FieldBranchID, core.CleanString(branchID))

	sessions, err := cli.svc.Sessions(context.Background(), q, sf)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tGROUP\tTRAINER\tBRANCH\tPRESENT\tABSENT\tLATE\tEXCUSED\tTOTAL")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			sess.Day(), sess.GroupName, sess.TrainerName, sess.BranchName,
			sess.PresentCount, sess.AbsentCount, sess.LateCount, sess.ExcusedCount, sess.TotalCount)
	}
	return w.Flush()
}

func (cli *commandLine) issueToken(subject, username, role string) error {
	if !core.StringInSlice(role, echoapi.Roles) {
		return fmt.Errorf("unknown role %q", role)
	}
	token, err := echoapi.GenerateToken(echoapi.NewClaims(cli.conf, subject, username, role), cli.conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
