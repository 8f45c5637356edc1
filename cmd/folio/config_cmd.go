package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/folio/internal/config"
)

const redacted = "********"

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printConfigHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func loadConfigForTool(args []string, name string) (*config.Config, int, bool) {
	fs := flag.NewFlagSet("config "+name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	envFile := fs.String("env", ".env", "Dotenv file to load before the config")
	if err := fs.Parse(args); err != nil {
		return nil, 1, false
	}
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		return nil, 1, false
	}
	if *configPath == "" {
		*configPath = config.DiscoverConfigPath()
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return nil, 1, false
	}
	return cfg, 0, true
}

func runConfigCheck(args []string) int {
	cfg, code, ok := loadConfigForTool(args, "check")
	if !ok {
		return code
	}

	source := cfg.SourceFile
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Printf("Config OK: %s\n", source)

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fingerprint config: %v\n", err)
		return 1
	}
	if fingerprint != "" {
		fmt.Printf("fingerprint: %s\n", fingerprint)
	}

	if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 && cfg.API.Auth.JWT.Secret == "" {
		fmt.Println("warning: no API credentials configured; every route will be open")
	}
	if !cfg.Journal.On() {
		fmt.Println("note: operation journal disabled")
	}
	return 0
}

func runConfigShow(args []string) int {
	cfg, code, ok := loadConfigForTool(args, "show")
	if !ok {
		return code
	}

	out, err := yaml.Marshal(redactSecrets(*cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

// redactSecrets returns a copy safe to print.
func redactSecrets(cfg config.Config) config.Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}

	cfg.API.Auth.APIKey = mask(cfg.API.Auth.APIKey)
	tokens := make([]config.APIToken, len(cfg.API.Auth.Tokens))
	for i, t := range cfg.API.Auth.Tokens {
		tokens[i] = config.APIToken{Token: mask(t.Token), Scopes: t.Scopes}
	}
	cfg.API.Auth.Tokens = tokens

	cfg.API.Auth.JWT.Secret = mask(cfg.API.Auth.JWT.Secret)
	clients := make([]config.JWTClient, len(cfg.API.Auth.JWT.Clients))
	for i, c := range cfg.API.Auth.JWT.Clients {
		clients[i] = config.JWTClient{ID: c.ID, Secret: mask(c.Secret), Scopes: c.Scopes}
	}
	cfg.API.Auth.JWT.Clients = clients

	cfg.Export.AccessKey = mask(cfg.Export.AccessKey)
	cfg.Export.SecretKey = mask(cfg.Export.SecretKey)
	return cfg
}

func printConfigHelp() {
	fmt.Println("Usage: folio config <check|show> [--config PATH] [--env FILE]")
	fmt.Println()
	fmt.Println("  check   Validate the configuration and print its BLAKE3 fingerprint")
	fmt.Println("  show    Print the effective configuration with secrets redacted")
}
