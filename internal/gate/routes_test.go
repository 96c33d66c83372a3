package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoles(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultRoutes(t *testing.T) {
	r := DefaultRoutes()
	assert.Equal(t, "/login", r.Login)
	assert.Equal(t, "/dashboard", r.LandingFor("student"))
	assert.Equal(t, "/organizer", r.LandingFor("Organizer"))
	assert.Equal(t, "/staff", r.LandingFor("staff"))
	assert.Equal(t, "/admin", r.LandingFor("ADMIN"))
	assert.Equal(t, "/dashboard", r.LandingFor("alumni"))
	assert.Equal(t, "/dashboard", r.LandingFor(""))
}

func TestLoadRoutes_Overlay(t *testing.T) {
	path := writeRoles(t, `
loginPath: /signin
landing:
  Staff: /staff/checkin
  alumni: /events
`)
	r, err := LoadRoutes(path)
	require.NoError(t, err)

	assert.Equal(t, "/signin", r.Login)
	assert.Equal(t, "/dashboard", r.Fallback)
	assert.Equal(t, "/staff/checkin", r.LandingFor("staff"))
	assert.Equal(t, "/events", r.LandingFor("alumni"))
	assert.Equal(t, "/admin", r.LandingFor("admin"))
}

func TestLoadRoutes_DoesNotMutateDefaults(t *testing.T) {
	_, err := LoadRoutes(writeRoles(t, "landing:\n  student: /events\n"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", DefaultRoutes().LandingFor("student"))
}

func TestLoadRoutes_Errors(t *testing.T) {
	_, err := LoadRoutes(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read roles config")

	_, err = LoadRoutes(writeRoles(t, "landing: [not, a, map]\n"))
	require.ErrorContains(t, err, "parse roles config")

	_, err = LoadRoutes(writeRoles(t, "landing:\n  staff: staff\n"))
	require.ErrorContains(t, err, "must be an absolute path")
}
