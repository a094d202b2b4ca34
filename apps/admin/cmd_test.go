package main

import (
	"bytes"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kilabu/apps/api/echo"
	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
	"github.com/trezcool/kilabu/storage/database/inmem"
	"github.com/trezcool/kilabu/tests"
)

func setup(t *testing.T) (*commandLine, attendance.Store, *bytes.Buffer) {
	db, err := inmemdb.Open()
	require.NoError(t, err)
	store := inmemdb.NewRecordStore(db)
	conf := core.NewTestConfig()

	out := new(bytes.Buffer)
	return &commandLine{
		conf:   conf,
		db:     new(sql.DB), // never dialed: migrations are mocked
		svc:    attendance.NewService(store, attendance.ServiceDeps{Conf: conf}),
		out:    out,
		logger: core.NopLogger,
	}, store, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    []string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, _, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: []string{"Usage:"}},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out := setup(t)

	runMigrationsFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_excuse_reason", "sql"}},
	})

	t.Run("memory store", func(t *testing.T) {
		cli.db = nil
		err := cli.run([]string{"admin", "migrate", "up"})
		assert.EqualError(t, err, "migrations need the postgres store (ATTENDANCE_STOREBACKEND=postgres)")
	})
}

func Test_commandLine_listSessions(t *testing.T) {
	cli, store, out := setup(t)

	mar1 := testutil.Day(t, "2024-03-01").Add(17 * time.Hour)
	mar2 := testutil.Day(t, "2024-03-02").Add(17 * time.Hour)
	testutil.CreateRecords(t, store,
		testutil.NewRecord(mar1, "g1", "t1", "s1", attendance.StatusPresent),
		testutil.NewRecord(mar1, "g1", "t1", "s2", attendance.StatusLate),
		testutil.NewRecord(mar2, "g2", "t2", "s3", attendance.StatusAbsent),
	)

	runCLITests(t, cli, out, []cliTest{
		{name: "all", args: []string{"sessions"}, wantOut: []string{"DATE", "2024-03-01", "2024-03-02"}},
		{name: "by group", args: []string{"sessions", "-group", "g2"}, wantOut: []string{"2024-03-02", "Trainer t2"}},
		{name: "by date", args: []string{"sessions", "-date", "2024-03-01"}, wantOut: []string{"Trainer t1"}},
		{name: "bad date", args: []string{"sessions", "-date", "01/03"}, wantErrStr: `invalid date "01/03": expected format YYYY-MM-DD`},
		{name: "unknown flag", args: []string{"sessions", "-lol"}, wantErr: errHelp},
	})

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "sessions", "-search", "trainer t2"}))
	assert.NotContains(t, out.String(), "2024-03-01")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2) // header + 1 session
}

func Test_commandLine_issueToken(t *testing.T) {
	cli, _, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"token"}, wantErr: errHelp},
		{name: "no username", args: []string{"token", "-subject", "u1"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"token", "-subject", "u1", "-username", "amani", "-role", "coach"}, wantErrStr: `unknown role "coach"`},
	})

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "token", "-subject", "u1", "-username", "amani", "-role", echoapi.RoleTrainer}))

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "amani", claims.Username)
	assert.True(t, claims.CanManageAttendance())
}
