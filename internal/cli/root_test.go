package cli

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagEnv(t *testing.T) {
	t.Setenv("SQLBEAM_ENV_FILE", "/tmp/custom.env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "")
	strategy := fs.String("strategy", "wide", "")

	require.NoError(t, fs.Parse([]string{"--strategy", "focused"}))
	require.NoError(t, bindFlagEnv(fs))

	assert.Equal(t, "/tmp/custom.env", *envFile, "unset flag picks up the env value")
	assert.Equal(t, "focused", *strategy, "explicit flags win over env")
}
