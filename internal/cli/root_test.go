package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rulesql", cmd.Use)
	assert.Contains(t, cmd.Long, "attribute")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "render", "exec", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	driverFlag := cmd.PersistentFlags().Lookup("driver")
	require.NotNil(t, driverFlag)
	assert.Equal(t, "sqlite3", driverFlag.DefValue)

	for _, name := range []string{"dsn", "log-level", "config", "specs"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRequestFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"render", "exec"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			for _, flag := range []string{"values", "filter", "columns"} {
				assert.NotNil(t, sub.Flags().Lookup(flag), flag)
			}
		})
	}

	execCmd, _, err := cmd.Find([]string{"exec"})
	require.NoError(t, err)
	assert.NotNil(t, execCmd.Flags().Lookup("init"))
	assert.NotNil(t, execCmd.Flags().Lookup("dry-run"))

	renderCmd, _, err := cmd.Find([]string{"render"})
	require.NoError(t, err)
	assert.NotNil(t, renderCmd.Flags().Lookup("dialect"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_InvalidDriver(t *testing.T) {
	chdir(t, t.TempDir())

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--driver", "oracle", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database.driver")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t)
	cfg := filepath.Join(dir, "rulesql.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("format: json\nspecs: "+specs+"\n"), 0o644))

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "validate"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"valid":true`)
}

func TestRootCommand_VerboseLogsToStderr(t *testing.T) {
	chdir(t, t.TempDir())
	specs := writeSpecs(t)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"-v", "render", specs, "users", "read"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "SELECT * FROM users")
	assert.Contains(t, errOut.String(), "configuration loaded")
	assert.Contains(t, errOut.String(), "rendered statement")
}
