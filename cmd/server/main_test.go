package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/datalog-plotter/backend/internal/api"
	"github.com/datalog-plotter/backend/internal/config"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/datalog-plotter/backend/internal/session"
	"github.com/datalog-plotter/backend/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand executes a cobra command and returns output.
func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommand(RootCmd, "--help")
	require.NoError(t, err)
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "serve")
	assert.Contains(t, output, "pulls")
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCommand(RootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "datalog-plotter dev")
}

func TestPullsCommand(t *testing.T) {
	path := testutil.WriteDatalog(t, t.TempDir(), "scenario.csv", testutil.ScenarioCSV())

	output, err := executeCommand(RootCmd, "pulls", path, "--throttle", "50", "--time-filter", "1")
	require.NoError(t, err)
	assert.Contains(t, output, testutil.SampleInfo)
	assert.Contains(t, output, "6 rows, 4 channels")
	assert.Contains(t, output, "Pull 1")
	assert.Contains(t, output, "Start: 1.00 sec")
	assert.Contains(t, output, "Duration: 2.00 sec")
	assert.Contains(t, output, "rows 1-3")
	assert.NotContains(t, output, pulls.NoPullsMessage)
}

func TestPullsCommand_NoPulls(t *testing.T) {
	path := testutil.WriteDatalog(t, t.TempDir(), "scenario.csv", testutil.ScenarioCSV())

	output, err := executeCommand(RootCmd, "pulls", path, "--throttle", "50", "--time-filter", "3")
	require.NoError(t, err)
	assert.Contains(t, output, pulls.NoPullsMessage)
	assert.Contains(t, output, pulls.NoPullsHint)
	assert.NotContains(t, output, "Pull 1")
}

func TestPullsCommand_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := executeCommand(RootCmd, "pulls", filepath.Join(dir, "missing.csv"), "--throttle", "50", "--time-filter", "0.5")
	assert.Error(t, err)

	noThrottle := testutil.WriteDatalog(t, dir, "nothrottle.csv",
		testutil.CSVDatalog([]string{models.TimeChannel, "Boost (psi)"}, [][]string{{"0", "1"}}))
	output, err := executeCommand(RootCmd, "pulls", noThrottle, "--throttle", "50", "--time-filter", "0.5")
	assert.Error(t, err)
	assert.Contains(t, output, models.ThrottleChannel)

	_, err = executeCommand(RootCmd, "pulls")
	assert.Error(t, err)
}

func TestNewEchoServesAPI(t *testing.T) {
	cfg := config.DefaultConfig()
	store := testutil.NewMockStorage(t.TempDir())
	e := newEcho(cfg, &api.Dependencies{
		Store:      store,
		SessionMgr: session.NewManager(nil, nil),
		Defaults:   cfg.Segmentation.Defaults,
		Bounds:     cfg.Segmentation.Bounds,
		Version:    "test",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/unknown", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveConfig_ExplicitMissingFile(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "absent.yaml")
	defer func() { configPath = "" }()

	_, err := resolveConfig(pullsCmd)
	assert.Error(t, err)

	_, statErr := os.Stat(configPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveConfig_DefaultsHonorEnvironment(t *testing.T) {
	data := t.TempDir()
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATA_DIR", data)
	t.Setenv("PORT", "7071")

	cfg, err := resolveConfig(versionCmd)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, data, cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(data, "parsed"), cfg.Storage.ParsedDataDirectory)
	assert.Equal(t, 7071, cfg.Server.Port)
	assert.Empty(t, loadedConfigPath)

	_, statErr := os.Stat(config.DefaultConfigPath)
	assert.True(t, os.IsNotExist(statErr))
}
