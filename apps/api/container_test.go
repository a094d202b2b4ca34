package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kilabu/apps/api/echo"
	"github.com/trezcool/kilabu/apps/shared"
	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
)

func TestNewContainer(t *testing.T) {
	c := newContainer(core.NewTestConfig)

	err := c.Invoke(func(
		storage *shared.Storage,
		metrics core.Metrics,
		svc *attendance.Service,
		server *echoapi.Server,
	) {
		defer func() { assert.NoError(t, storage.Close()) }()

		assert.NotNil(t, storage.Store)
		assert.NotNil(t, metrics)
		assert.NotNil(t, svc)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	require.NoError(t, err)
}
