package notifycli

import (
	"errors"
	"testing"

	"github.com/tj/assert"
)

func TestOptionsValidate(t *testing.T) {
	t.Run("lambda mode requires a region", func(t *testing.T) {
		opts := Options{Env: "dev"}
		err := opts.Validate()
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingOption))
		assert.Contains(t, err.Error(), "--region")
	})

	t.Run("console mode falls back to sdk defaults", func(t *testing.T) {
		opts := Options{Env: "local", Console: true}
		assert.NoError(t, opts.Validate())
	})

	t.Run("env is always required", func(t *testing.T) {
		opts := Options{Console: true}
		assert.True(t, errors.Is(opts.Validate(), ErrMissingOption))
	})
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "TABLE_NAME", EnvVar("table-name"))
	assert.Equal(t, "PEER_REGIONS", EnvVar("peer-regions"))
}
