package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

func TestNewEngineRendersLayout(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/not_found.html", TemplateData{
		Title: "Not found",
		Nav:   Nav{SignedIn: true, Name: "Rahima"},
		Flash: &shared.FlashMessage{Kind: shared.FlashInfo, Message: "Saved"},
	})
	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Not found · BloodBridge</title>")
	assert.Contains(t, body, "Rahima")
	assert.Contains(t, body, "Saved")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestTaka(t *testing.T) {
	assert.Equal(t, "৳1,250.50", Taka(1250.5))
	assert.Equal(t, "৳0.00", Taka(0))
}

func TestDict(t *testing.T) {
	m, err := dict("a", 1, "b", "x")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, m)

	_, err = dict("a")
	assert.Error(t, err)
	_, err = dict(1, 2)
	assert.Error(t, err)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "badge-pending", statusClass(api.StatusPending))
	assert.Equal(t, "badge-done", statusClass(api.StatusApproved))
	assert.Equal(t, "badge-unknown", statusClass(api.Status("lost")))
}
