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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/minerva/pkg/credentials"
)

// KeychainCmd administers API keys in the OS keychain under the service
// name "minerva".
type KeychainCmd struct {
	Set    KeychainSetCmd    `cmd:"" help:"Store a credential."`
	Get    KeychainGetCmd    `cmd:"" help:"Print a stored credential."`
	List   KeychainListCmd   `cmd:"" help:"List stored credential names."`
	Delete KeychainDeleteCmd `cmd:"" help:"Delete a stored credential."`
}

// KeychainSetCmd stores a secret, read from the terminal without echo.
type KeychainSetCmd struct {
	Name string `arg:"" help:"Credential name, e.g. OPENAI_API_KEY."`
}

func (c *KeychainSetCmd) Run() error {
	secret, err := readSecret(fmt.Sprintf("Secret for %s: ", c.Name))
	if err != nil {
		return err
	}
	if secret == "" {
		fmt.Println("Empty secret, nothing stored.")
		return nil
	}

	if err := credentials.NewStore().Set(c.Name, secret); err != nil {
		return err
	}
	fmt.Printf("Stored %s. Reference it in configs as ${%s}.\n", c.Name, c.Name)
	return nil
}

// KeychainGetCmd prints a stored secret to stdout.
type KeychainGetCmd struct {
	Name string `arg:"" help:"Credential name."`
}

func (c *KeychainGetCmd) Run() error {
	secret, err := credentials.NewStore().Get(c.Name)
	if err != nil {
		return err
	}
	fmt.Println(secret)
	return nil
}

// KeychainListCmd lists stored credential names.
type KeychainListCmd struct{}

func (c *KeychainListCmd) Run() error {
	names, err := credentials.NewStore().List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No credentials stored.")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// KeychainDeleteCmd removes a stored secret.
type KeychainDeleteCmd struct {
	Name string `arg:"" help:"Credential name."`
}

func (c *KeychainDeleteCmd) Run() error {
	if err := credentials.NewStore().Delete(c.Name); err != nil {
		return err
	}
	fmt.Printf("Deleted %s.\n", c.Name)
	return nil
}

// readSecret reads a secret without echo when stdin is a terminal, and
// falls back to a plain line read for pipes.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
