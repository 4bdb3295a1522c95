package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const usersSpec = `
package specs

entity: users: {
	attributes: {
		id:     {create: "absent", update: "absent"}
		name:   {create: "required"}
		email:  {create: "required", read: "absent"}
		active: {}
	}
}
`

const auditSpec = `
entity:
  audit_log:
    operations: [create, read]
    attributes:
      id: {create: absent}
      message: {create: required}
`

const usersSchema = `
CREATE TABLE users (
	id     INTEGER PRIMARY KEY,
	name   TEXT NOT NULL,
	email  TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);
INSERT INTO users (name, email) VALUES ('Ann', 'ann@example.com'), ('Bob', 'bob@example.com');
`

// writeSpecs writes a CUE and a YAML entity file into a new directory.
func writeSpecs(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "specs")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.cue"), []byte(usersSpec), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit.yaml"), []byte(auditSpec), 0644))
	return dir
}

// writeFile writes content to name inside a new directory.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(old)) })
}
