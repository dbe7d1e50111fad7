package wsmux

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterMatchesPathAndMethod(t *testing.T) {
	router := NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, http.MethodGet)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, http.MethodGet)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterNotFound(t *testing.T) {
	router := NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {}, http.MethodGet)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterPathVariable(t *testing.T) {
	router := NewRouter()
	var got string
	router.HandleFunc("/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = Vars(r)["id"]
	}, http.MethodGet)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rooms/lobby", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, "lobby", got)
}

func TestRouterMatchReturnsRouteAndVars(t *testing.T) {
	router := NewRouter()
	route := router.HandleFunc("/rooms/{id}/ws", func(w http.ResponseWriter, r *http.Request) {}, http.MethodGet)

	matched, vars, err := router.Match(httptest.NewRequest(http.MethodGet, "/rooms/42/ws", nil))
	require.NoError(t, err)
	assert.Same(t, route, matched)
	assert.Equal(t, "42", vars["id"])
}
