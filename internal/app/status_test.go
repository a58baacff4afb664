package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/plan"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
)

func TestStatusServer(t *testing.T) {
	sc := &scenario.Scenario{Name: "base", Type: scenario.TypeBaseline, Active: true}
	units := []*plan.RunUnit{
		{Scenario: sc, Step: &project.Step{Name: "setup"}},
		{Scenario: sc, Step: &project.Step{Name: "model"}},
	}

	server := newStatusServer(slog.Default(), "run-1", "demo", units)

	units[0].State = plan.StateSucceeded
	server.unitChanged(units[0])
	units[1].State = plan.StateFailed
	units[1].Err = assert.AnError
	server.unitChanged(units[1])

	rec := httptest.NewRecorder()
	server.statusHandler(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		RunID   string       `json:"run_id"`
		Project string       `json:"project"`
		Units   []unitStatus `json:"units"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "demo", report.Project)
	require.Len(t, report.Units, 2)
	assert.Equal(t, "succeeded", report.Units[0].State)
	assert.Equal(t, "failed", report.Units[1].State)
	assert.NotEmpty(t, report.Units[1].Error)
}

func TestStatusServerHealth(t *testing.T) {
	server := newStatusServer(slog.Default(), "run-1", "demo", nil)

	rec := httptest.NewRecorder()
	server.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OK")
}
