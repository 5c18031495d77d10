package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

var (
	userFirstName  string
	userLastName   string
	userEmail      string
	userRole       string
	userDepartment string
	userActive     string
	userListRole   string
	userRef        string
)

// stdin is shared so the password and its confirmation come from one buffer.
var (
	stdin      = bufio.NewReader(os.Stdin)
	isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// userCmd represents the user command group
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
	Long: `Commands for managing accounts.

These commands operate directly on the database file and are intended
for system administrators to manage users outside of the API.

Examples:
  # List all users
  taskctl user list

  # Create an admin user
  taskctl user create --first Root --last Admin --email root@example.com --role Admin

  # Change a user's password
  taskctl user passwd --user root@example.com`,
}

// userListCmd lists users
var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Long: `List users in the database, optionally filtered by role and active flag.

Passwords are never displayed.

Example:
  taskctl user list --role Developer --active true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := storage.UserFilter{Role: models.ParseRole(userListRole)}
		if userListRole != "" && filter.Role == "" {
			return fmt.Errorf("invalid role %q", userListRole)
		}
		if userActive != "" {
			active, err := strconv.ParseBool(userActive)
			if err != nil {
				return fmt.Errorf("--active must be true or false")
			}
			filter.IsActive = &active
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		users, err := store.Users().List(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		out := cmd.OutOrStdout()
		if ok, err := printStructured(out, users); err != nil || ok {
			return err
		}
		if len(users) == 0 {
			fmt.Fprintln(out, "No users found.")
			return nil
		}

		fmt.Fprintf(out, "\n%-36s  %-24s  %-30s  %-10s  %-7s  %s\n",
			"ID", "NAME", "EMAIL", "ROLE", "ACTIVE", "CREATED")
		fmt.Fprintln(out, strings.Repeat("-", 126))
		for _, u := range users {
			fmt.Fprintf(out, "%-36s  %-24s  %-30s  %-10s  %-7t  %s\n",
				u.ID,
				truncate(u.FullName(), 24),
				truncate(u.Email, 30),
				u.Role,
				u.IsActive,
				u.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		fmt.Fprintf(out, "\nTotal: %d user(s)\n", len(users))
		return nil
	},
}

// userCreateCmd creates a new user
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Long: `Create a new account.

The password will be prompted interactively for security reasons
(to avoid exposing it in shell history).

Password requirements:
  - Minimum 8 characters
  - At least 1 uppercase letter (A-Z)
  - At least 1 lowercase letter (a-z)
  - At least 1 digit (0-9)

Available roles: Admin, Manager, Developer (default).

Example:
  taskctl user create --first Ada --last Lovelace --email ada@example.com --role Manager`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword(cmd, "Enter password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword(cmd, "Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password confirmation: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := userService(store).Create(context.Background(), service.CreateUserInput{
			FirstName:       userFirstName,
			LastName:        userLastName,
			Email:           userEmail,
			Password:        password,
			ConfirmPassword: confirm,
			Role:            userRole,
			Department:      userDepartment,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		out := cmd.OutOrStdout()
		if ok, err := printStructured(out, user); err != nil || ok {
			return err
		}
		fmt.Fprintf(out, "\nUser created successfully:\n")
		fmt.Fprintf(out, "  ID:    %s\n", user.ID)
		fmt.Fprintf(out, "  Name:  %s\n", user.FullName())
		fmt.Fprintf(out, "  Email: %s\n", user.Email)
		fmt.Fprintf(out, "  Role:  %s\n", user.Role)
		return nil
	},
}

// userPasswdCmd changes a user's password
var userPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change a user's password",
	Long: `Change the password for an existing user and revoke their sessions.

The new password will be prompted interactively.

Example:
  taskctl user passwd --user admin@localhost`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		users := userService(store)
		ctx := context.Background()
		user, err := users.Find(ctx, userRef)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}

		password, err := promptPassword(cmd, "Enter new password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword(cmd, "Confirm new password: ")
		if err != nil {
			return fmt.Errorf("read password confirmation: %w", err)
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		if err := users.SetPassword(ctx, user.ID, password); err != nil {
			return fmt.Errorf("set password: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nPassword changed successfully for %s.\n", user.Email)
		fmt.Fprintln(cmd.OutOrStdout(), "All existing sessions have been revoked.")
		return nil
	},
}

func newSetActiveCmd(use string, active bool) *cobra.Command {
	verb := "Deactivate"
	if active {
		verb = "Activate"
	}
	return &cobra.Command{
		Use:     use,
		Short:   verb + " a user account",
		Example: fmt.Sprintf("  taskctl user %s --user ada@example.com", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := userService(store).SetActive(context.Background(), userRef, active)
			if err != nil {
				return fmt.Errorf("%s user: %w", use, err)
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, user); err != nil || ok {
				return err
			}
			fmt.Fprintf(out, "User %s is now %s.\n", user.Email, activeLabel(user.IsActive))
			return nil
		},
	}
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

var (
	userActivateCmd   = newSetActiveCmd("activate", true)
	userDeactivateCmd = newSetActiveCmd("deactivate", false)
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd, userCreateCmd, userPasswdCmd, userActivateCmd, userDeactivateCmd)

	userListCmd.Flags().StringVar(&userListRole, "role", "", "filter by role")
	userListCmd.Flags().StringVar(&userActive, "active", "", "filter by active flag (true or false)")

	// Create-specific flags
	userCreateCmd.Flags().StringVar(&userFirstName, "first", "", "first name (required)")
	userCreateCmd.Flags().StringVar(&userLastName, "last", "", "last name (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email for the new user (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(models.RoleDeveloper), "role: Admin, Manager or Developer")
	userCreateCmd.Flags().StringVar(&userDepartment, "department", "", "department")
	userCreateCmd.MarkFlagRequired("first")
	userCreateCmd.MarkFlagRequired("last")
	userCreateCmd.MarkFlagRequired("email")

	for _, c := range []*cobra.Command{userPasswdCmd, userActivateCmd, userDeactivateCmd} {
		c.Flags().StringVar(&userRef, "user", "", "user id or email (required)")
		c.MarkFlagRequired("user")
	}
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if isTerminal() {
		// Read password without echo
		passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(passwordBytes), nil
	}

	// Fallback for non-terminal input (e.g., piped input)
	password, err := stdin.ReadString('\n')
	if err != nil && !(err == io.EOF && password != "") {
		return "", err
	}
	return strings.TrimSpace(password), nil
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-2]) + ".."
}
