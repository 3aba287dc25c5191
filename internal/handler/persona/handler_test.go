package persona

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectionlab/voicecall/backend/internal/model/persona"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	seeds, err := persona.Seed()
	require.NoError(t, err)

	r := chi.NewRouter()
	New(persona.NewMemoryStore(seeds)).RegisterRoutes(r)
	return r
}

func TestListPersonasHidesPrompt(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"tyler"`)
	assert.NotContains(t, rec.Body.String(), "ghosted 3 coaches")
	assert.NotContains(t, rec.Body.String(), `"prompt"`)
}

func TestGetPersona(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas/maria", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Maria"`)

	rec = httptest.NewRecorder()
	newRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
