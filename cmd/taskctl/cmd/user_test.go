package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

func setupTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	store := storage.NewSQLiteStorage(storage.Config{Path: path})
	require.NoError(t, store.Open())
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Close())
	return path
}

// run executes taskctl with args against the database at path, feeding
// input to password prompts.
func run(t *testing.T, path, input string, args ...string) (string, error) {
	t.Helper()

	oldStdin, oldTerminal := stdin, isTerminal
	stdin = bufio.NewReader(strings.NewReader(input))
	isTerminal = func() bool { return false }
	t.Cleanup(func() { stdin, isTerminal = oldStdin, oldTerminal })

	// Flag values live in package vars and survive between executions.
	output, userListRole, userActive, userRole, userDepartment = outputTable, "", "", string(models.RoleDeveloper), ""
	projectStatus = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--db", path))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestUserCreateAndList(t *testing.T) {
	path := setupTestDB(t)

	out, err := run(t, path, "Secret123\nSecret123\n",
		"user", "create", "--first", "Ada", "--last", "Lovelace", "--email", "ada@example.com", "--role", "Manager")
	require.NoError(t, err)
	assert.Contains(t, out, "User created successfully")
	assert.Contains(t, out, "ada@example.com")

	_, err = run(t, path, "Secret123\nSecret123\n",
		"user", "create", "--first", "Linus", "--last", "Dev", "--email", "linus@example.com")
	require.NoError(t, err)

	out, err = run(t, path, "", "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 2 user(s)")

	out, err = run(t, path, "", "user", "list", "--role", "manager", "-o", "json")
	require.NoError(t, err)
	var users []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "ada@example.com", users[0]["email"])
	assert.NotContains(t, users[0], "password_hash")

	out, err = run(t, path, "", "user", "list", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "email: linus@example.com")
	assert.NotContains(t, strings.ToLower(out), "passwordhash")

	_, err = run(t, path, "", "user", "list", "--role", "Owner")
	assert.Error(t, err)
}

func TestUserCreate_Validation(t *testing.T) {
	path := setupTestDB(t)

	_, err := run(t, path, "Secret123\nOther1234\n",
		"user", "create", "--first", "Ada", "--last", "Lovelace", "--email", "ada@example.com")
	assert.Error(t, err)

	_, err = run(t, path, "weak\nweak\n",
		"user", "create", "--first", "Ada", "--last", "Lovelace", "--email", "ada@example.com")
	assert.Error(t, err)

	out, err := run(t, path, "", "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users found.")
}

func TestUserPasswdAndActivation(t *testing.T) {
	path := setupTestDB(t)

	_, err := run(t, path, "Secret123\nSecret123\n",
		"user", "create", "--first", "Ada", "--last", "Lovelace", "--email", "ada@example.com")
	require.NoError(t, err)

	out, err := run(t, path, "Changed456\nChanged456\n", "user", "passwd", "--user", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Password changed successfully")

	out, err = run(t, path, "", "user", "deactivate", "--user", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "is now inactive")

	store := storage.NewSQLiteStorage(storage.Config{Path: path})
	require.NoError(t, store.Open())
	user, err := store.Users().GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NotNil(t, user)
	assert.False(t, user.IsActive)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "Changed456"))

	out, err = run(t, path, "", "user", "activate", "--user", user.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "is now active")

	_, err = run(t, path, "", "user", "activate", "--user", "nobody@example.com")
	assert.Error(t, err)
}

func TestProjectList(t *testing.T) {
	path := setupTestDB(t)

	out, err := run(t, path, "", "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No projects found.")

	_, err = run(t, path, "", "project", "list", "--status", "Paused")
	assert.Error(t, err)
}

func TestOpenStore_MissingFile(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.db"), "", "user", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database file not found")
}

func TestUserCommandFlags(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{userListCmd, []string{"role", "active", "db", "output"}},
		{userCreateCmd, []string{"first", "last", "email", "role", "department", "db"}},
		{userPasswdCmd, []string{"user", "db"}},
		{userActivateCmd, []string{"user", "db"}},
		{userDeactivateCmd, []string{"user", "db"}},
		{projectListCmd, []string{"status", "db"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Name(), func(t *testing.T) {
			for _, name := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(name), "missing flag %s", name)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefgh..", truncate("abcdefghijklmnop", 10))
}
