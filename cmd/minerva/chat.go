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
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kadirpekel/minerva/pkg/chat"
	"github.com/kadirpekel/minerva/pkg/config"
	"github.com/kadirpekel/minerva/pkg/credentials"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// ChatCmd is an interactive REPL over a running minerva MCP server.
type ChatCmd struct {
	Config string `short:"c" required:"" type:"path" help:"Path to the chat config JSON."`
	Resume string `type:"path" help:"Resume a saved conversation file."`
}

func (c *ChatCmd) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadChat(c.Config)
	if err != nil {
		return err
	}

	p, err := provider.New(cfg.Provider, credentials.NewStore())
	if err != nil {
		return err
	}
	defer p.Close()

	tools, err := chat.Connect(ctx, cfg.MCPServerURL, Version)
	if err != nil {
		return err
	}
	defer tools.Close()

	conv := chat.NewConversation(cfg.ConversationDir)
	if c.Resume != "" {
		conv, err = chat.LoadConversation(c.Resume)
		if err != nil {
			return err
		}
	}

	session, err := chat.NewSession(ctx, p, tools, cfg.Provider.LLMModel,
		chat.WithConversation(conv),
		chat.WithMaxToolIterations(cfg.MaxToolIterations),
	)
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s with %s. Empty line or Ctrl+D exits.\n",
		cfg.MCPServerURL, cfg.Provider.LLMModel)
	if conv.Path() != "" {
		fmt.Printf("Transcript: %s\n", conv.Path())
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		question := strings.TrimSpace(line)
		if question == "" {
			return nil
		}

		answer, err := session.Ask(ctx, question)
		if err != nil {
			printError(err)
			continue
		}
		fmt.Println(answer)
		fmt.Println()
	}
}
