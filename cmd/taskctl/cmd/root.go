// Package cmd contains the CLI commands for taskctl.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahmetcdevelopment/task-management-api/internal/service"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// defaultDBPath is the default database path, can be overridden via TASKS_DATABASE_PATH env var
var defaultDBPath = "./data/tasks.db"

func init() {
	if envPath := os.Getenv("TASKS_DATABASE_PATH"); envPath != "" {
		defaultDBPath = envPath
	}
}

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	// Used for flags
	verbose bool
	output  string
	dbPath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "taskctl - task management administration",
	Long: `taskctl manages a task management API database directly.

It is meant for operators: creating the first accounts, resetting
passwords and switching accounts on or off without going through the API.

Examples:
  # List all managers
  taskctl user list --role Manager

  # Create a developer account
  taskctl user create --first Ada --last Lovelace --email ada@example.com --role Developer

  # Show projects as YAML
  taskctl project list -o yaml`,
	SilenceUsage: true,
	// Run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputTable, "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath, "path to SQLite database file")
}

// printStructured writes v as JSON or YAML. It reports false for table output.
// YAML goes through the JSON form so both formats share field names and
// hidden fields stay hidden.
func printStructured(w io.Writer, v any) (bool, error) {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(generic)
	case outputTable, "":
		return false, nil
	default:
		return false, fmt.Errorf("unknown output format %q", output)
	}
}

// openStore opens an existing database.
func openStore() (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", dbPath)
	}

	store := storage.NewSQLiteStorage(storage.Config{Path: dbPath})
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// userService wires the account service over store.
func userService(store storage.Storage) *service.UserService {
	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}
	return service.NewUserService(store, logger)
}
