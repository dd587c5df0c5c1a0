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

	"github.com/kadirpekel/minerva/pkg/collection"
	"github.com/kadirpekel/minerva/pkg/vector"
)

// RemoveCmd deletes a collection. Destruction requires typing YES and
// then the collection name; anything else cancels, which is a success.
type RemoveCmd struct {
	Path       string `arg:"" type:"path" help:"Vector store directory."`
	Collection string `arg:"" help:"Collection to delete."`

	// input is replaced in tests.
	input io.Reader
}

func (c *RemoveCmd) Run() error {
	ctx := context.Background()

	store, err := vector.NewChromemStore(c.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	col, err := store.GetCollection(ctx, c.Collection)
	if err != nil {
		return err
	}

	noteCount := 0
	if md, err := collection.FromMap(col.Metadata()); err == nil {
		noteCount = md.NoteCount
	}
	fmt.Printf("About to permanently delete collection %q (%d notes, %d chunks) from %s.\n",
		c.Collection, noteCount, col.Count(), c.Path)

	in := c.input
	if in == nil {
		in = os.Stdin
	}
	reader := bufio.NewReader(in)

	fmt.Print("Type YES to continue: ")
	if answer, _ := readLine(reader); answer != "YES" {
		fmt.Println("Cancelled.")
		return nil
	}

	fmt.Printf("Type the collection name (%s) to confirm: ", c.Collection)
	if answer, _ := readLine(reader); answer != c.Collection {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := store.DeleteCollection(ctx, c.Collection); err != nil {
		return err
	}
	fmt.Printf("Deleted %q.\n", c.Collection)
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	return strings.TrimSpace(line), err
}
