package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpawatch/mpawatch/internal/models"
)

const masterCSV = "Site_Name,WDPA_Code,Latitude,Longitude,Area_ha\n" +
	"Dogger Bank,555591636,54.75,1.92,1233700\n" +
	"Bassurelle Sandbank,555560480.0,50.6,0.7,6764.2\n"

func writeCatalog(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	master := filepath.Join(dir, "master.csv")
	require.NoError(t, os.WriteFile(master, []byte(masterCSV), 0o600))
	t.Setenv("MPA_MASTER_CSV", master)
	t.Setenv("MPA_FEATURES_CSV", filepath.Join(dir, "missing.csv"))
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestMPAsCommand(t *testing.T) {
	writeCatalog(t)

	out, _, err := run(t, "mpas")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "555560480")
	assert.Contains(t, lines[1], "Bassurelle Sandbank")
	assert.Contains(t, lines[2], "Dogger Bank")

	out, _, err = run(t, "mpas", "--json")
	require.NoError(t, err)
	var mpas []models.MPA
	require.NoError(t, json.Unmarshal([]byte(out), &mpas))
	assert.Len(t, mpas, 2)
}

func TestAnalyzeCommand(t *testing.T) {
	writeCatalog(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"entries":[{"public-global-fishing-effort:v3.0":[
			{"date":"2023-02","vesselId":"v1","geartype":"dredge_fishing","hours":3}
		]}]}`)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("GFW_BASE_URL", srv.URL)
	t.Setenv("GFW_API_TOKEN", "test-token")

	out, _, err := run(t, "analyze", "--wdpa", "555591636", "--start", "2023-01-01", "--end", "2023-03-31")
	require.NoError(t, err)

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.AnalysisStatusSuccess, result.Status)
	assert.Equal(t, "Dogger Bank", result.MPAName)
	assert.Equal(t, 3.0, result.Summary.DredgingHours)
}

func TestAnalyzeCommandAuthFailure(t *testing.T) {
	writeCatalog(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("GFW_BASE_URL", srv.URL)
	t.Setenv("GFW_API_TOKEN", "bad")

	out, _, err := run(t, "analyze", "--mpa", "Dogger Bank", "--wdpa", "555591636", "--start", "2023-01-01", "--end", "2023-03-31")
	require.ErrorIs(t, err, errAnalysisFailed)

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.AnalysisStatusError, result.Status)
}

func TestAnalyzeCommandUnknownCode(t *testing.T) {
	writeCatalog(t)

	_, _, err := run(t, "analyze", "--wdpa", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown WDPA code 1")
}

func TestTokenCommand(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "researcher@example.org",
		"iat": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	t.Setenv("GFW_API_TOKEN", signed)

	out, _, err := run(t, "token")
	require.NoError(t, err)
	assert.Contains(t, out, "researcher@example.org")
	assert.Contains(t, out, "2024-01-01T00:00:00Z")
}

func TestTokenCommandMissing(t *testing.T) {
	t.Setenv("GFW_API_TOKEN", "")

	_, _, err := run(t, "token")
	require.Error(t, err)
}

func TestAnalysisWindow(t *testing.T) {
	now := time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)

	from, to, err := analysisWindow("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), to)

	_, _, err = analysisWindow("2024-02-01", "2024-01-01", now)
	assert.Error(t, err)

	_, _, err = analysisWindow("01/02/2024", "", now)
	assert.Error(t, err)
}
