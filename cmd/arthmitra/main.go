package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/embedding"
	"github.com/arthmitra/arthmitra/internal/gateway"
	"github.com/arthmitra/arthmitra/internal/intent"
	"github.com/arthmitra/arthmitra/internal/logging"
	"github.com/arthmitra/arthmitra/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "arthmitra",
	Short: "arthmitra - conversational financial assistant backend",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE:  runServe,
}

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute and persist the exemplar embeddings",
	RunE:  runWarm,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and store status",
	RunE:  runStatus,
}

var configFlag string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, warmCmd, configCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

func runWarm(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.Logging.Level)

	st, err := store.OpenSQLite(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	embedder := embedding.NewClient(cfg.Embedding, logging.Component(log, "embedding"))
	if _, err := gateway.EnsureExemplarIndex(cmd.Context(), st, embedder, cfg.Embedding.Model, logging.Component(log, "intent")); err != nil {
		return err
	}

	fmt.Printf("Exemplar index ready (model %s, revision %s)\n", cfg.Embedding.Model, intent.Revision())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFlag
	if path == "" {
		path = config.ConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Created config: %s\n", path)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Gateway:    %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("Embedding:  %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("LLM:        %s\n", cfg.LLM.Model)
	fmt.Printf("Store:      %s", cfg.Store.DBPath)
	if _, err := os.Stat(cfg.Store.DBPath); err == nil {
		fmt.Print(" (present)")
	} else {
		fmt.Print(" (not created yet)")
	}
	fmt.Println()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Config:     incomplete: %v\n", err)
	} else {
		fmt.Println("Config:     ok")
	}
	return nil
}
