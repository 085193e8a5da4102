package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should register the serve command", func(t *testing.T) {
		root := RootCmd()
		serve, _, err := root.Find([]string{"serve"})
		require.NoError(t, err)
		assert.Equal(t, "serve", serve.Name())
	})

	t.Run("Should expose the global flags", func(t *testing.T) {
		root := RootCmd()
		for _, name := range []string{"env-file", "base-path", "log-level", "log-json"} {
			assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
		}
	})

	t.Run("Should carry a version", func(t *testing.T) {
		assert.NotEmpty(t, RootCmd().Version)
	})
}
