package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := Root()

	want := []string{"plan", "apply", "destroy", "state", "version", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, "command %q not registered", name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestStateRegistersSubcommands(t *testing.T) {
	root := Root()

	for _, name := range []string{"list", "show", "rm"} {
		cmd, _, err := root.Find([]string{"state", name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestDestroyHasForceFlag(t *testing.T) {
	cmd := Destroy()
	assert.NotNil(t, cmd.Flags().Lookup("force"))
}

func TestPlanHasJSONFlag(t *testing.T) {
	cmd := Plan()
	assert.NotNil(t, cmd.Flags().Lookup("json"))
	assert.NotNil(t, cmd.Flags().Lookup("config"))
}
