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

package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

// fakeKeyring is an in-memory Keyring for tests.
type fakeKeyring struct {
	entries map[string]string
}

func newFakeKeyring() *fakeKeyring {
	return &fakeKeyring{entries: make(map[string]string)}
}

func (f *fakeKeyring) Set(service, account, secret string) error {
	f.entries[service+"/"+account] = secret
	return nil
}

func (f *fakeKeyring) Get(service, account string) (string, error) {
	v, ok := f.entries[service+"/"+account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (f *fakeKeyring) Delete(service, account string) error {
	key := service + "/" + account
	if _, ok := f.entries[key]; !ok {
		return keyring.ErrNotFound
	}
	delete(f.entries, key)
	return nil
}

func newTestStore(env map[string]string) (*Store, *fakeKeyring) {
	fk := newFakeKeyring()
	s := NewStore(
		WithKeyring(fk),
		WithGetenv(func(name string) string { return env[name] }),
	)
	return s, fk
}

func TestIsTemplate(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"${OPENAI_API_KEY}", true},
		{"${_X}", true},
		{"sk-literal-key", false},
		{"${}", false},
		{"${lower-dash}", false},
		{"prefix${NAME}", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTemplate(tt.ref), "ref=%q", tt.ref)
	}
}

func TestResolve_Literal(t *testing.T) {
	s, _ := newTestStore(nil)
	got, err := s.Resolve("sk-literal")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal", got)
}

func TestResolve_EnvWins(t *testing.T) {
	s, fk := newTestStore(map[string]string{"OPENAI_API_KEY": "from-env"})
	require.NoError(t, fk.Set(Service, "OPENAI_API_KEY", "from-keychain"))

	got, err := s.Resolve("${OPENAI_API_KEY}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestResolve_KeychainFallback(t *testing.T) {
	s, fk := newTestStore(nil)
	require.NoError(t, fk.Set(Service, "GEMINI_API_KEY", "from-keychain"))

	got, err := s.Resolve("${GEMINI_API_KEY}")
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", got)
}

func TestResolve_Missing(t *testing.T) {
	s, _ := newTestStore(nil)

	_, err := s.Resolve("${NOPE_KEY}")
	require.Error(t, err)
	assert.True(t, minerr.Is(err, minerr.KindCredentialMissing))
	assert.Contains(t, err.Error(), "NOPE_KEY")
	assert.Contains(t, minerr.SuggestionOf(err), "export NOPE_KEY=")
	assert.Contains(t, minerr.SuggestionOf(err), "minerva keychain set NOPE_KEY")
}

func TestAdmin_SetGetListDelete(t *testing.T) {
	s, _ := newTestStore(map[string]string{"B_KEY": "env-should-be-ignored"})

	require.NoError(t, s.Set("A_KEY", "aaa"))
	require.NoError(t, s.Set("B_KEY", "bbb"))

	// Get reads keychain only, never the environment.
	got, err := s.Get("B_KEY")
	require.NoError(t, err)
	assert.Equal(t, "bbb", got)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"A_KEY", "B_KEY"}, names)

	require.NoError(t, s.Delete("A_KEY"))
	names, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"B_KEY"}, names)

	_, err = s.Get("A_KEY")
	assert.True(t, minerr.Is(err, minerr.KindCredentialMissing))
}

func TestDelete_Missing(t *testing.T) {
	s, _ := newTestStore(nil)
	err := s.Delete("GONE")
	assert.True(t, minerr.Is(err, minerr.KindCredentialMissing))
}
