//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for salespipe.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/salespipe/salespipe/internal/config"
	"github.com/salespipe/salespipe/internal/logging"
	"github.com/salespipe/salespipe/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "salespipe",
		Short: "Staged ELT pipeline for a PostgreSQL sales warehouse",
		Long: `salespipe loads raw CSV extracts and a public-holiday feed into a
PostgreSQL staging area, cleans and types them, builds a star schema
with dense surrogate keys, validates it through a quality gate, and
publishes the result atomically into the dwh schema.

A run fully replaces the warehouse content; rerunning over the same
inputs reproduces the same warehouse, surrogate keys included.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./salespipe.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reportCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
