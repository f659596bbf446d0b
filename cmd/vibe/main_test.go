package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandLayout(t *testing.T) {
	root := newRootCommand()

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	migrate, _, err := root.Find([]string{"migrate"})
	require.NoError(t, err)
	assert.Equal(t, []string{"up", "down", "status"}, migrate.ValidArgs)

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"migrate", "sideways"})
	assert.Error(t, root.Execute())
}

func TestDefaultConfigPathFromEnv(t *testing.T) {
	t.Setenv("VIBE_CONFIG", "/etc/vibe/config.yaml")
	assert.Equal(t, "/etc/vibe/config.yaml", defaultConfigPath())
}
