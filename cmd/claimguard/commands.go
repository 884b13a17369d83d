// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/harborline/claimguard/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// --- Global Command Variables ---
var (
	cfgFile string
	verbose bool
	logger  *logging.Logger

	claimPolicyNumber string
	claimPolicyType   string
	claimAmount       float64
	claimEvidenceIDs  []string
	validateJSON      bool

	ingestPolicyType string
	ingestSource     string

	rulesVerifyJSON bool

	rootCmd = &cobra.Command{
		Use:   "claimguard",
		Short: "A cli to operate the ClaimGuard claim validation service",
		Long: `ClaimGuard validates insurance claims against indexed policy
				clauses using grounded model decisions, citation checks, and a
				deterministic business-rule overlay.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelInfo
			if verbose {
				level = logging.LevelDebug
			}
			logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  viper.GetString("log_dir"),
				Service: "cli",
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	// --- Claims ---
	validateCmd = &cobra.Command{
		Use:   "validate [claim description]",
		Short: "Validate one claim against the indexed policy clauses",
		Args:  cobra.ExactArgs(1),
		Run:   runValidate, // Defined in cmd_claims.go
	}

	// --- Policies ---
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Manage the indexed policy documents",
	}
	policyIngestCmd = &cobra.Command{
		Use:   "ingest [file path]",
		Short: "Chunk a policy document into clauses and index it",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyIngest, // Defined in cmd_claims.go
	}

	// --- Rules ---
	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Base command to interact with the business claim rules",
		Long: `Use rules + subcommands to interact with the claim rules that are
				embedded in the claimguard binary or supplied as an override file.`,
	}
	rulesVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of the embedded claim rules",
		Long:  `Calculates the SHA256 hash of the compiled-in rule definitions. Use this to verify that the binary is running the expected version of the rules.`,
		Run:   runRulesVerify, // Defined in cmd_rules.go
	}
	rulesDumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Prints out the whole embedded rule file to stdout",
		Run:   runRulesDump, // Defined in cmd_rules.go
	}
	rulesLintCmd = &cobra.Command{
		Use:   "lint [file path]",
		Short: "Parse a rule override file and report problems",
		Args:  cobra.ExactArgs(1),
		Run:   runRulesLint, // Defined in cmd_rules.go
	}
)

// init runs when the Go program starts
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: $HOME/.claimguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&claimPolicyNumber, "policy-number", "", "Policy number of the claim")
	validateCmd.Flags().StringVar(&claimPolicyType, "policy-type", "", "Policy type: Motor, Home, Health, or Life")
	validateCmd.Flags().Float64Var(&claimAmount, "amount", 0, "Claimed amount")
	validateCmd.Flags().StringSliceVar(&claimEvidenceIDs, "evidence", nil,
		"Evidence document IDs to extract and cross-check (repeatable)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the raw outcome as JSON")

	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyIngestCmd)
	policyIngestCmd.Flags().StringVar(&ingestPolicyType, "policy-type", "", "Policy type the document belongs to")
	policyIngestCmd.Flags().StringVar(&ingestSource, "source", "", "Source label (default: the file name)")

	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesVerifyCmd)
	rulesVerifyCmd.Flags().BoolVar(&rulesVerifyJSON, "json", false, "Output as JSON")
	rulesCmd.AddCommand(rulesDumpCmd)
	rulesCmd.AddCommand(rulesLintCmd)
}

// initConfig reads in the config file and CLAIMGUARD_* env variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.claimguard")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CLAIMGUARD")
	viper.AutomaticEnv()
	viper.SetDefault("service_url", "http://localhost:12310")

	_ = viper.ReadInConfig()
}

// getServiceBaseURL resolves the claims service URL from config or env.
func getServiceBaseURL() string {
	return viper.GetString("service_url")
}
