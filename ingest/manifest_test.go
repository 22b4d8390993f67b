package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
[[source]]
name = "weworkremotely"
platform = "wwr"
kind = "feed"
url = "https://example.com/wwr.json"

[[source]]
name = "hn-hiring"
platform = "hn"
kind = "feed"
url = "https://example.com/hn.json"
disabled = true
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Sources, 2)
	assert.Equal(t, "weworkremotely", m.Sources[0].Name)
	assert.True(t, m.Sources[1].Disabled)
}

func TestLoadManifestValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", `
[[source]]
platform = "wwr"
kind = "feed"
url = "https://example.com/x.json"
`},
		{"duplicate name", `
[[source]]
name = "a"
platform = "wwr"
kind = "feed"
url = "https://example.com/x.json"

[[source]]
name = "a"
platform = "hn"
kind = "feed"
url = "https://example.com/y.json"
`},
		{"missing platform", `
[[source]]
name = "a"
kind = "feed"
url = "https://example.com/x.json"
`},
		{"feed without url", `
[[source]]
name = "a"
platform = "wwr"
kind = "feed"
`},
		{"unknown kind", `
[[source]]
name = "a"
platform = "wwr"
kind = "carrier-pigeon"
url = "https://example.com/x.json"
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestBuildSkipsDisabledSources(t *testing.T) {
	m := &Manifest{Sources: []SourceSpec{
		{Name: "live", Platform: "wwr", Kind: KindFeed, URL: "https://example.com/live.json"},
		{Name: "dark", Platform: "hn", Kind: KindFeed, URL: "https://example.com/dark.json", Disabled: true},
	}}

	sources, err := m.Build(30 * time.Second)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "wwr", sources[0].Platform())
}
