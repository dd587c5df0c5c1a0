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

// Package credentials resolves ${NAME} credential references.
//
// A reference is either a literal string (returned unchanged) or a template
// of the form ${NAME}. Templates resolve from the process environment first,
// then from the OS keychain under service "minerva". The template itself is
// what persists in configs and collection metadata; resolution happens at
// exactly one point, just before a network call.
package credentials

import (
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"sort"

	"github.com/zalando/go-keyring"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

// Service is the keychain service name under which Minerva stores secrets.
const Service = "minerva"

// indexAccount is the keychain account holding the list of stored names.
// The OS keychain API has no enumeration, so set/delete maintain this entry
// for List.
const indexAccount = "__index__"

var templateRe = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// IsTemplate reports whether ref is a ${NAME} template.
func IsTemplate(ref string) bool {
	return templateRe.MatchString(ref)
}

// TemplateName extracts NAME from a ${NAME} template, or "" when ref is not
// a template.
func TemplateName(ref string) string {
	m := templateRe.FindStringSubmatch(ref)
	if m == nil {
		return ""
	}
	return m[1]
}

// Keyring abstracts the OS keychain for testing.
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// systemKeyring is the zalando/go-keyring backed implementation.
type systemKeyring struct{}

func (systemKeyring) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

func (systemKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (systemKeyring) Delete(service, account string) error {
	return keyring.Delete(service, account)
}

// Store resolves credential references and administers the keychain.
type Store struct {
	keyring Keyring
	getenv  func(string) string
}

// Option customizes a Store.
type Option func(*Store)

// WithKeyring replaces the OS keychain backend.
func WithKeyring(k Keyring) Option {
	return func(s *Store) { s.keyring = k }
}

// WithGetenv replaces the environment lookup.
func WithGetenv(fn func(string) string) Option {
	return func(s *Store) { s.getenv = fn }
}

// NewStore creates a credential store backed by the process environment and
// the OS keychain.
func NewStore(opts ...Option) *Store {
	s := &Store{
		keyring: systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve resolves a credential reference to a secret.
//
// Literal strings pass through unchanged. ${NAME} templates resolve from the
// environment variable NAME, then from the keychain entry (service "minerva",
// account NAME). A missing credential is a minerr.KindCredentialMissing error
// naming the variable and both remediations.
func (s *Store) Resolve(ref string) (string, error) {
	name := TemplateName(ref)
	if name == "" {
		return ref, nil
	}

	if v := s.getenv(name); v != "" {
		return v, nil
	}

	secret, err := s.keyring.Get(Service, name)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", minerr.Wrap(minerr.KindCredentialMissing, err,
			"credential %s could not be read from the keychain", name).
			WithField(name).
			WithSuggestion("export %s=... or run: minerva keychain set %s", name, name)
	}

	return "", minerr.New(minerr.KindCredentialMissing,
		"credential %s is not set", name).
		WithField(name).
		WithSuggestion("export %s=... or run: minerva keychain set %s", name, name)
}

// Set stores a secret in the keychain and records the name in the index.
// Administrative operations never touch the environment.
func (s *Store) Set(name, secret string) error {
	if name == "" {
		return minerr.New(minerr.KindValidation, "credential name cannot be empty")
	}
	if err := s.keyring.Set(Service, name, secret); err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "failed to store credential %s in keychain", name)
	}
	return s.updateIndex(func(names map[string]bool) {
		names[name] = true
	})
}

// Get reads a secret from the keychain only.
func (s *Store) Get(name string) (string, error) {
	secret, err := s.keyring.Get(Service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", minerr.New(minerr.KindCredentialMissing,
			"credential %s is not in the keychain", name).
			WithField(name).
			WithSuggestion("run: minerva keychain set %s", name)
	}
	if err != nil {
		return "", minerr.Wrap(minerr.KindInternal, err, "failed to read credential %s from keychain", name)
	}
	return secret, nil
}

// Delete removes a secret from the keychain and the index.
func (s *Store) Delete(name string) error {
	err := s.keyring.Delete(Service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return minerr.New(minerr.KindCredentialMissing,
			"credential %s is not in the keychain", name).WithField(name)
	}
	if err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "failed to delete credential %s from keychain", name)
	}
	return s.updateIndex(func(names map[string]bool) {
		delete(names, name)
	})
}

// List returns the names of stored credentials, sorted.
func (s *Store) List() ([]string, error) {
	names, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) readIndex() (map[string]bool, error) {
	raw, err := s.keyring.Get(Service, indexAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, minerr.Wrap(minerr.KindInternal, err, "failed to read keychain index")
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		// A corrupt index only degrades listing; start fresh.
		return map[string]bool{}, nil
	}

	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (s *Store) updateIndex(mutate func(map[string]bool)) error {
	names, err := s.readIndex()
	if err != nil {
		return err
	}
	mutate(names)

	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	sort.Strings(list)

	raw, err := json.Marshal(list)
	if err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "failed to encode keychain index")
	}
	if err := s.keyring.Set(Service, indexAccount, string(raw)); err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "failed to write keychain index")
	}
	return nil
}
