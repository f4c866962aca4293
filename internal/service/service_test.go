package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/executor"
	"github.com/sakif/rpg-bot/internal/i18n"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/repository/sqlite"
)

const superUser = "1000"

var testSettings = model.Settings{
	CommandDelay:    15 * time.Second,
	ButtonDelay:     2 * time.Second,
	AttemptsMaximum: 3,
	CodeLength:      4,
	PageSize:        10,
	SourceExpiry:    7 * 24 * time.Hour,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockExecutor is a hand-written executor.Executor. It records requests and
// answers with the configured result or error.
type mockExecutor struct {
	mu       sync.Mutex
	requests []executor.Request
	result   *executor.Result
	err      error
	gistID   string
	shareErr error
	shared   []string
}

func (m *mockExecutor) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockExecutor) Share(_ context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shared = append(m.shared, code)
	return m.gistID, m.shareErr
}

type testServices struct {
	db       *sqlite.DB
	settings *SettingsService
	users    *UserService
	sources  *SourceService
	exec     *ExecutionService
	executor *mockExecutor
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := discardLogger()
	mock := &mockExecutor{
		result: &executor.Result{Success: true, Stdout: "hi\n", Stderr: "   Compiling playground v0.0.1 (/playground)"},
		gistID: "g1",
	}
	users := NewUserService(db.Users(), i18n.MustLoad(), superUser, logger)

	return &testServices{
		db:       db,
		settings: NewSettingsService(db.Config(), logger),
		users:    users,
		sources:  NewSourceService(db.SourceCodes(), logger),
		exec:     NewExecutionService(mock, users, logger),
		executor: mock,
	}
}

func (ts *testServices) sync(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := ts.users.Sync(context.Background(), model.Profile{TelegramID: id, FullName: "User " + id}, testSettings)
	require.NoError(t, err)
	return u
}

// =========================================================================
// SETTINGS
// =========================================================================

func TestSettingsLoad_Defaults(t *testing.T) {
	ts := newTestServices(t)

	s, err := ts.settings.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.Settings{
		CommandDelay:    15 * time.Second,
		ButtonDelay:     2 * time.Second,
		AttemptsMaximum: 100,
		CodeLength:      4,
		PageSize:        10,
		SourceExpiry:    7 * 24 * time.Hour,
	}, s)

	all, err := ts.db.Config().All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(model.SettingDefaults), "defaults are persisted on first read")
}

func TestSettingsSet(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()

	n, err := ts.settings.Set(ctx, " PAGE_SIZE ", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	s, err := ts.settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, s.PageSize)

	tests := []struct {
		name, value string
		key         string
	}{
		{"nope", "1", "admin.set_unknown"},
		{"page_size", "abc", "admin.set_invalid"},
		{"page_size", "0", "admin.set_invalid"},
		{"code_length", "64", "admin.set_invalid"},
	}
	for _, tt := range tests {
		_, err := ts.settings.Set(ctx, tt.name, tt.value)
		require.ErrorIs(t, err, apperror.ErrValidation, "%s=%s", tt.name, tt.value)
		key, _, ok := apperror.KeyOf(err)
		assert.True(t, ok)
		assert.Equal(t, tt.key, key)
	}
}

func TestSettingsLoad_IgnoresCorruptRow(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	require.NoError(t, ts.db.Config().Set(ctx, model.SettingButtonDelay, "soon"))

	s, err := ts.settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, s.ButtonDelay)
}

func TestSettingsLoad_Cached(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()

	_, err := ts.settings.Load(ctx)
	require.NoError(t, err)

	// Written behind the service's back: not seen until the entry expires.
	require.NoError(t, ts.db.Config().Set(ctx, model.SettingPageSize, "20"))
	s, err := ts.settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, s.PageSize)

	// Written through the service: seen at once.
	_, err = ts.settings.Set(ctx, model.SettingPageSize, "25")
	require.NoError(t, err)
	s, err = ts.settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, s.PageSize)
}

func TestSettingsLoad_StoredRows(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()

	require.NoError(t, ts.db.Config().Set(ctx, model.SettingPageSize, "20"))
	require.NoError(t, ts.db.Config().Set(ctx, model.SettingCodeLength, "oops"))

	s, err := NewSettingsService(ts.db.Config(), discardLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, s.PageSize)
	assert.Equal(t, 4, s.CodeLength, "invalid rows fall back to the default")

	all, err := ts.db.Config().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(model.SettingDefaults))
	assert.Equal(t, "oops", all[model.SettingCodeLength], "stored rows are never rewritten on read")
}

func TestSettingsList_Order(t *testing.T) {
	ts := newTestServices(t)

	list, err := ts.settings.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, len(model.SettingDefaults))
	for i, d := range model.SettingDefaults {
		assert.Equal(t, d.Name, list[i].Name)
		assert.Equal(t, d.Default, list[i].Value)
	}
}

// =========================================================================
// USERS
// =========================================================================

func TestUserSync(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()

	u, err := ts.users.Sync(ctx, model.Profile{TelegramID: "5", FullName: "Ivan", LanguageCode: "ru-RU"}, testSettings)
	require.NoError(t, err)
	assert.Equal(t, "ru", u.Language)
	assert.Equal(t, testSettings.AttemptsMaximum, u.AttemptsMaximum)
	assert.False(t, u.IsAdmin)

	other, err := ts.users.Sync(ctx, model.Profile{TelegramID: "6", LanguageCode: "de"}, testSettings)
	require.NoError(t, err)
	assert.Equal(t, "en", other.Language)

	root := ts.sync(t, superUser)
	assert.True(t, root.IsAdmin, "super-user is admin from the first sync")
	assert.True(t, ts.users.IsSuperUser(root))
}

func TestUserStampAndCharge(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	u := ts.sync(t, "5")

	now := time.Date(2024, 1, 1, 10, 0, 0, 500, time.UTC)
	require.NoError(t, ts.users.Stamp(ctx, u, model.RecordCommand, now))
	require.NoError(t, ts.users.ChargeAttempt(ctx, u))

	stored, err := ts.users.Get(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, now.Truncate(time.Second), *stored.LastCommandRecord)
	assert.Equal(t, *u.LastCommandRecord, *stored.LastCommandRecord)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, 1, u.Attempts)
}

func TestUserSetLanguage(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	u := ts.sync(t, "5")

	require.NoError(t, ts.users.SetLanguage(ctx, u, "ar"))
	assert.Equal(t, "ar", u.Language)

	err := ts.users.SetLanguage(ctx, u, "klingon")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestUserToggles(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("admin bans and unbans a plain user", func(t *testing.T) {
		ts := newTestServices(t)
		root := ts.sync(t, superUser)
		ts.sync(t, "2")

		got, err := ts.users.ToggleBan(ctx, root, "2", now)
		require.NoError(t, err)
		assert.True(t, got.IsBan)
		assert.Equal(t, now, *got.BanDate)

		got, err = ts.users.ToggleBan(ctx, root, "2", now)
		require.NoError(t, err)
		assert.False(t, got.IsBan)
		assert.Nil(t, got.BanDate)
	})

	t.Run("self toggles are refused", func(t *testing.T) {
		ts := newTestServices(t)
		root := ts.sync(t, superUser)

		_, err := ts.users.ToggleBan(ctx, root, superUser, now)
		assert.ErrorIs(t, err, apperror.ErrForbidden)
		_, err = ts.users.ToggleAdmin(ctx, root, superUser)
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("peer admins are protected from non super-users", func(t *testing.T) {
		ts := newTestServices(t)
		root := ts.sync(t, superUser)
		ts.sync(t, "2")
		ts.sync(t, "3")

		admin2, err := ts.users.ToggleAdmin(ctx, root, "2")
		require.NoError(t, err)
		require.True(t, admin2.IsAdmin)
		_, err = ts.users.ToggleAdmin(ctx, root, "3")
		require.NoError(t, err)

		_, err = ts.users.ToggleAdmin(ctx, admin2, "3")
		assert.ErrorIs(t, err, apperror.ErrForbidden)
		key, _, _ := apperror.KeyOf(err)
		assert.Equal(t, "admin.peer", key)

		_, err = ts.users.ToggleBan(ctx, admin2, "3", now)
		assert.ErrorIs(t, err, apperror.ErrForbidden)
		key, _, _ = apperror.KeyOf(err)
		assert.Equal(t, "admin.peer_ban", key)

		demoted, err := ts.users.ToggleAdmin(ctx, root, "3")
		require.NoError(t, err)
		assert.False(t, demoted.IsAdmin)
	})

	t.Run("non admins cannot toggle", func(t *testing.T) {
		ts := newTestServices(t)
		plain := ts.sync(t, "2")
		ts.sync(t, "3")

		_, err := ts.users.ToggleBan(ctx, plain, "3", now)
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("unknown target", func(t *testing.T) {
		ts := newTestServices(t)
		root := ts.sync(t, superUser)

		_, err := ts.users.ToggleAdmin(ctx, root, "404")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		key, vars, _ := apperror.KeyOf(err)
		assert.Equal(t, "admin.user_not_found", key)
		assert.Equal(t, "404", vars["id"])
	})
}

func TestUserSetAttemptsMaximum(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	ts.sync(t, "2")

	require.NoError(t, ts.users.SetAttemptsMaximum(ctx, "2", 500))
	u, err := ts.users.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 500, u.AttemptsMaximum)

	assert.ErrorIs(t, ts.users.SetAttemptsMaximum(ctx, "2", -1), apperror.ErrValidation)
	assert.ErrorIs(t, ts.users.SetAttemptsMaximum(ctx, "404", 5), apperror.ErrNotFound)
}

// =========================================================================
// SOURCES
// =========================================================================

func TestParseOptions(t *testing.T) {
	tests := []struct {
		args []string
		want Options
	}{
		{nil, DefaultOptions},
		{[]string{"Nightly"}, Options{"nightly", "debug", "2021"}},
		{[]string{"beta", "RELEASE"}, Options{"beta", "release", "2021"}},
		{[]string{"beta", "release", "2015", "extra"}, Options{"beta", "release", "2015"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseOptions(tt.args), "%v", tt.args)
	}
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions.Validate())

	err := Options{"foo", "debug", "2021"}.Validate()
	require.ErrorIs(t, err, apperror.ErrValidation)
	key, vars, _ := apperror.KeyOf(err)
	assert.Equal(t, "error.invalid_version", key)
	assert.Equal(t, "foo", vars["value"])

	err = Options{"stable", "fast", "2021"}.Validate()
	key, _, _ = apperror.KeyOf(err)
	assert.Equal(t, "error.invalid_mode", key)

	err = Options{"stable", "debug", "2024"}.Validate()
	key, _, _ = apperror.KeyOf(err)
	assert.Equal(t, "error.invalid_edition", key)
}

func TestSourceCreate_ConcurrentCodesAreUnique(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")

	const n = 20
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src, err := ts.sources.Create(context.Background(), u, "fn main() {}", DefaultOptions, testSettings, time.Now())
			if assert.NoError(t, err) {
				codes <- src.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for c := range codes {
		assert.Len(t, c, 4)
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
}

func TestSourceCreate_RetriesOnCollision(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")

	draws := []string{"same", "same", "next"}
	ts.sources.newCode = func(int) string {
		c := draws[0]
		draws = draws[1:]
		return c
	}

	first, err := ts.sources.Create(context.Background(), u, "a", DefaultOptions, testSettings, time.Now())
	require.NoError(t, err)
	second, err := ts.sources.Create(context.Background(), u, "b", DefaultOptions, testSettings, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "same", first.Code)
	assert.Equal(t, "next", second.Code)
}

func TestSourceCreate_GivesUp(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")
	ts.sources.newCode = func(int) string { return "dupe" }

	_, err := ts.sources.Create(context.Background(), u, "a", DefaultOptions, testSettings, time.Now())
	require.NoError(t, err)
	_, err = ts.sources.Create(context.Background(), u, "b", DefaultOptions, testSettings, time.Now())
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestSourceUpdateOption(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	u := ts.sync(t, "5")
	src, err := ts.sources.Create(ctx, u, "fn main() {}", DefaultOptions, testSettings, time.Now())
	require.NoError(t, err)

	got, err := ts.sources.UpdateOption(ctx, src.Code, model.FieldMode, model.ModeRelease)
	require.NoError(t, err)
	assert.Equal(t, model.ModeRelease, got.Mode)

	stored, err := ts.sources.Get(ctx, src.Code)
	require.NoError(t, err)
	assert.Equal(t, model.ModeRelease, stored.Mode)
	assert.Equal(t, model.VersionStable, stored.Version)

	_, err = ts.sources.UpdateOption(ctx, src.Code, model.FieldMode, "turbo")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = ts.sources.UpdateOption(ctx, "gone", model.FieldMode, model.ModeDebug)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	key, _, _ := apperror.KeyOf(err)
	assert.Equal(t, "error.expired", key)
}

func TestSourceSweepExpired(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	u := ts.sync(t, "5")
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src, err := ts.sources.Create(ctx, u, "fn main() {}", DefaultOptions, testSettings, created)
	require.NoError(t, err)
	assert.Equal(t, created, src.CreatedAt)

	n, err := ts.sources.SweepExpired(ctx, time.Hour, created.Add(time.Hour-time.Second))
	require.NoError(t, err)
	assert.Zero(t, n, "younger than the expiry")

	n, err = ts.sources.SweepExpired(ctx, time.Hour, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "exactly the expiry old")

	n, err = ts.sources.SweepExpired(ctx, time.Hour, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "sweeping twice removes nothing more")

	_, err = ts.sources.Get(ctx, src.Code)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// EXECUTION
// =========================================================================

func TestExecutionRun(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")

	out, err := ts.exec.Run(context.Background(), u, "fn main() {}", Options{"beta", "release", "2018"})
	require.NoError(t, err)

	assert.False(t, out.CompileFailed)
	assert.Equal(t, "   Compiling playground v0.0.1 (playground)\nhi\n", out.Text)
	assert.Equal(t, []executor.Request{{Code: "fn main() {}", Channel: "beta", Mode: "release", Edition: "2018"}}, ts.executor.requests)
	assert.Equal(t, 1, u.Attempts)
}

func TestExecutionRun_CompileFailureStillCharges(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")
	ts.executor.result = &executor.Result{Stderr: "error: could not compile `playground` (bin \"playground\")"}

	out, err := ts.exec.Run(context.Background(), u, "fn main() {", DefaultOptions)
	require.NoError(t, err)
	assert.True(t, out.CompileFailed)

	stored, _ := ts.users.Get(context.Background(), "5")
	assert.Equal(t, 1, stored.Attempts)
}

func TestExecutionRun_RemoteErrorStillCharges(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")
	ts.executor.err = errors.New("connection refused")

	_, err := ts.exec.Run(context.Background(), u, "fn main() {}", DefaultOptions)
	assert.ErrorContains(t, err, "connection refused")

	stored, _ := ts.users.Get(context.Background(), "5")
	assert.Equal(t, 1, stored.Attempts)
}

func TestExecutionShare(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")

	out, err := ts.exec.Share(context.Background(), u, "fn main() {}", DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, "https://play.rust-lang.org/?version=stable&mode=debug&edition=2021&gist=g1", out.Text)
	assert.Equal(t, []string{"fn main() {}"}, ts.executor.shared)
	assert.Equal(t, 1, u.Attempts, "a share costs one attempt")
}

func TestExecutionShare_Refused(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")
	ts.executor.result = &executor.Result{
		Stderr: "error[E0308]: mismatched types\n --> /playground/src/main.rs\nerror: could not compile `playground` due to previous error",
	}

	out, err := ts.exec.Share(context.Background(), u, "bad", DefaultOptions)
	require.NoError(t, err)
	assert.True(t, out.CompileFailed)
	assert.Contains(t, out.Text, "error: Source code cannot be shared due to previous error")
	assert.Contains(t, out.Text, "--> playground/src/main.rs")
	assert.Empty(t, ts.executor.shared, "nothing is published for a broken snippet")
}

func TestExecutionShare_Unsupported(t *testing.T) {
	ts := newTestServices(t)
	u := ts.sync(t, "5")
	ts.executor.shareErr = executor.ErrShareUnsupported

	_, err := ts.exec.Share(context.Background(), u, "fn main() {}", DefaultOptions)
	assert.ErrorIs(t, err, executor.ErrShareUnsupported)
}
