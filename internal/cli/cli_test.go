package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehansentribe/honorsfest/internal/config"
	"github.com/thehansentribe/honorsfest/internal/handler"
	"github.com/thehansentribe/honorsfest/internal/i18n"
	"github.com/thehansentribe/honorsfest/internal/model"
)

const seedFile = "../seed/testdata/camporee.yaml"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seededServer serves the camporee fixture from memory.
func seededServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{SeedFile: seedFile}
	require.NoError(t, cfg.Validate())
	a, err := openApp(context.Background(), cfg, discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h := handler.New(a.engine, a.catalog, nil, i18n.NewTranslator("en"), discard())
	srv := httptest.NewServer(handler.NewRouter(h, discard()))
	t.Cleanup(srv.Close)
	return srv
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "honorsfest", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"serve"}, {"migrate", "up"}, {"migrate", "down"}, {"seed"}, {"counts"}, {"register"}, {"withdraw"}}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	serverFlag := cmd.PersistentFlags().Lookup("server")
	require.NotNil(t, serverFlag)
	assert.Equal(t, "http://localhost:8080", serverFlag.DefValue)

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	for _, name := range []string{"addr", "database-url", "journal", "seed", "migrate"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "counts", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := WrapExitError(ExitCommandError, "failed", inner)
	assert.Equal(t, "failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(inner))
}

func TestSeedCheck(t *testing.T) {
	out, err := execute(t, "--format", "json", "seed", "--check", seedFile)
	require.NoError(t, err)

	var summary SeedSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.False(t, summary.Applied)
	assert.Equal(t, 3, summary.Classes)
	assert.Equal(t, 4, summary.Registrations)

	_, err = execute(t, "seed", "--check", "testdata/missing.yaml")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCountsCommand(t *testing.T) {
	srv := seededServer(t)

	out, err := execute(t, "--server", srv.URL, "counts", "1")
	require.NoError(t, err)
	assert.Equal(t, "class 1: 2/2 enrolled, 1 waitlisted\n", out)

	out, err = execute(t, "--server", srv.URL, "--format", "json", "counts", "1")
	require.NoError(t, err)
	var counts model.Counts
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts.Waitlisted)

	_, err = execute(t, "--server", srv.URL, "counts", "99")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "--server", srv.URL, "counts", "first")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRegisterConflictAndResolve(t *testing.T) {
	srv := seededServer(t)

	// ana (user 2) holds knots (class 1, registration 1); lashing (class 4)
	// runs in the same hour.
	out, err := execute(t, "--server", srv.URL, "register", "2", "4")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "conflict: already in \"Knot Tying\" (registration 1); retry with --resolve 1\n", out)

	out, err = execute(t, "--server", srv.URL, "register", "2", "4", "--resolve", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "class 4 Enrolled")

	// cy moved up from the knots waitlist.
	out, err = execute(t, "--server", srv.URL, "counts", "1")
	require.NoError(t, err)
	assert.Equal(t, "class 1: 2/2 enrolled, 0 waitlisted\n", out)
}

func TestRegisterRefusals(t *testing.T) {
	srv := seededServer(t)

	// cy has no investiture level; first aid requires Friend.
	_, err := execute(t, "--server", srv.URL, "register", "4", "2")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := execute(t, "--server", srv.URL, "register", "3", "2")
	require.NoError(t, err, out)
	assert.Equal(t, "registration 6: class 2 Enrolled\nregistration 7: class 3 Enrolled\n", out)

	_, err = execute(t, "--server", srv.URL, "register", "3", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "--server", "http://127.0.0.1:1", "register", "3", "2")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWithdrawPromotes(t *testing.T) {
	srv := seededServer(t)

	out, err := execute(t, "--server", srv.URL, "withdraw", "1")
	require.NoError(t, err)
	assert.Equal(t, "withdrew registration 1 from class 1\n", out)

	out, err = execute(t, "--server", srv.URL, "counts", "1")
	require.NoError(t, err)
	assert.Equal(t, "class 1: 2/2 enrolled, 0 waitlisted\n", out)

	_, err = execute(t, "--server", srv.URL, "withdraw", "1")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOpenAppWithJournal(t *testing.T) {
	cfg := &config.Config{SeedFile: seedFile, JournalPath: filepath.Join(t.TempDir(), "journal.db")}
	require.NoError(t, cfg.Validate())

	a, err := openApp(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer a.Close()

	entries, err := a.journal.ListByClass(context.Background(), 1, 0, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestMigrateNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTO_MIGRATE", "")
	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
