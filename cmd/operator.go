// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewos/crew-service/internal/db"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

// createOperatorCmd bootstraps a platform operator account. Operators
// can impersonate tenant members, so there is deliberately no HTTP
// surface for creating one.
var createOperatorCmd = &cobra.Command{
	Use:   "create-operator",
	Short: "Create a platform operator account",
	Long:  `Create a platform account with the operator flag set, for support and administration.`,
	Run: func(cmd *cobra.Command, args []string) {
		dsn, _ := cmd.Flags().GetString("dsn")
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")

		if err := createOperator(cmd, dsn, email, name, password); err != nil {
			cmd.PrintErr(err)
			os.Exit(1)
		}
	},
}

func init() {
	createOperatorCmd.Flags().String("dsn", "", "PostgreSQL DSN connection string")
	createOperatorCmd.Flags().String("email", "", "Operator email address")
	createOperatorCmd.Flags().String("name", "", "Operator display name")
	createOperatorCmd.Flags().String("password", "", "Operator password")
	_ = createOperatorCmd.MarkFlagRequired("dsn")
	_ = createOperatorCmd.MarkFlagRequired("email")
	_ = createOperatorCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(createOperatorCmd)
}

func createOperator(cmd *cobra.Command, dsn, email, name, password string) error {
	logger := logging.NewNoopLogger()
	tracer := tracing.NewNoopTracer()
	monitor := monitoring.NewNoopMonitor()

	dbClient, err := db.NewDBClient(db.Config{DSN: dsn}, tracer, monitor, logger)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	defer dbClient.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s := storage.NewStorage(dbClient, tracer, monitor, logger)
	account, err := s.CreateAccount(cmd.Context(), &types.Account{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		SuperAdmin:   true,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to create operator account: %w", err)
	}

	cmd.Printf("Created operator account %s (%s)\n", account.ID, account.Email)
	return nil
}
