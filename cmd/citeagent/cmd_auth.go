package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Log in to the research backend",
	Long: `Log in with your account email. Prompts for the password.

When the backend is unreachable the credentials are checked against the
local offline store, and the session is marked offline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, secret, err := promptCredentials(args)
		if err != nil {
			return err
		}

		client := newBackendClient()
		manager := newSessionManager(client)

		session, err := manager.Login(cmd.Context(), email, secret)
		if err != nil {
			return err
		}
		if session.OfflineMode {
			fmt.Printf("Logged in offline as %s (backend unreachable).\n", session.Email)
		} else {
			fmt.Printf("Logged in as %s.\n", session.Email)
		}
		fmt.Printf("Session valid until %s.\n", session.ExpiresAt.Format("2006-01-02"))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [email]",
	Short: "Create an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, secret, err := promptCredentials(args)
		if err != nil {
			return err
		}

		client := newBackendClient()
		manager := newSessionManager(client)

		session, err := manager.Register(cmd.Context(), email, secret)
		if err != nil {
			return err
		}
		if session.OfflineMode {
			fmt.Printf("Registered %s offline; the account will sync when the backend is reachable.\n", session.Email)
		} else {
			fmt.Printf("Registered and logged in as %s.\n", session.Email)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Destroy the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newSessionManager(newBackendClient())
		if err := manager.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the session token for a fresh one",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newSessionManager(newBackendClient())
		if manager.Refresh(cmd.Context()) {
			fmt.Println("Session refreshed.")
		} else {
			fmt.Println("Refresh did not succeed; the current session is unchanged.")
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := newSessionManager(newBackendClient())
		session, err := manager.GetSession()
		if err != nil {
			return err
		}
		if session == nil {
			fmt.Println("Not logged in.")
			return nil
		}
		fmt.Printf("Email:    %s\n", session.Email)
		fmt.Printf("Account:  %s\n", session.AccountID)
		fmt.Printf("Expires:  %s\n", session.ExpiresAt.Format("2006-01-02 15:04"))
		if session.OfflineMode {
			fmt.Println("Mode:     offline")
		}
		if session.DailyTokenLimit > 0 {
			fmt.Printf("Daily limit: %d tokens\n", session.DailyTokenLimit)
		}
		if session.HasTempKey() {
			fmt.Printf("Provider key: %s (expires %s)\n",
				session.TempKeyProvider, session.TempKeyExpires.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// promptCredentials resolves email from args or a prompt, then prompts
// for the password.
func promptCredentials(args []string) (email, secret string, err error) {
	reader := bufio.NewReader(os.Stdin)

	if len(args) > 0 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", fmt.Errorf("email is required")
	}

	fmt.Print("Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	secret = strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", "", fmt.Errorf("password is required")
	}
	return email, secret, nil
}
