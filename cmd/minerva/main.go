// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command minerva indexes personal notes into a local vector store and
// serves them to AI agents over MCP.
//
// Usage:
//
//	minerva index --config index.json
//	minerva serve --config server.json
//	minerva serve-http --config server.json --port 8585
//	minerva query ./store "how do I fold dough"
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/kadirpekel/minerva/pkg/logger"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

// CLI defines the command-line interface.
type CLI struct {
	Index     IndexCmd     `cmd:"" help:"Index a notes JSON file into a collection."`
	Serve     ServeCmd     `cmd:"" help:"Serve MCP on stdio."`
	ServeHTTP ServeHTTPCmd `cmd:"" name:"serve-http" help:"Serve MCP over HTTP with health and metrics endpoints."`
	Chat      ChatCmd      `cmd:"" help:"Chat with your knowledge bases through a running server."`
	Query     QueryCmd     `cmd:"" help:"Search a collection directly, without a server."`
	Peek      PeekCmd      `cmd:"" help:"Show a collection's metadata and contents."`
	Validate  ValidateCmd  `cmd:"" help:"Validate a notes JSON file without indexing."`
	Remove    RemoveCmd    `cmd:"" help:"Delete a collection (asks twice)."`
	Keychain  KeychainCmd  `cmd:"" help:"Manage API keys in the OS keychain."`
	Schema    SchemaCmd    `cmd:"" help:"Generate JSON Schema for the config files."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile  string `help:"Log file path (empty = stderr)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("minerva %s\n", Version)
	return nil
}

func main() {
	// A .env next to the working directory is a convenience for API keys.
	_ = godotenv.Load()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("minerva"),
		kong.Description("Semantic search over your notes, served to AI agents via MCP."),
		kong.UsageOnError(),
	)

	if err := initLogger(cli.LogLevel, cli.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := kctx.Run(&cli); err != nil {
		printError(err)
		os.Exit(exitCode(err))
	}
}

func initLogger(levelStr, file string) error {
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return err
	}

	output := os.Stderr
	if file != "" {
		f, _, err := logger.OpenLogFile(file)
		if err != nil {
			return err
		}
		output = f
	}
	logger.Init(level, output, "simple")
	return nil
}

// printError writes a human-readable error banner naming what failed, the
// offending field, and a remediation when one is known.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var me *minerr.Error
	if errors.As(err, &me) {
		if me.Field != "" {
			fmt.Fprintf(os.Stderr, "  field: %s\n", me.Field)
		}
		if me.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  try:   %s\n", me.Suggestion)
		}
	}
}

// exitCode maps error kinds to exit codes: 1 for user-correctable
// problems, 2 for unexpected internal failures.
func exitCode(err error) int {
	var me *minerr.Error
	if !errors.As(err, &me) {
		return 2
	}
	switch me.Kind {
	case minerr.KindInternal:
		return 2
	default:
		return 1
	}
}
