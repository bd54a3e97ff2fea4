package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "serve", "migrate", "seed", "corrections", "stats", "suggest"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCmd_Metadata(t *testing.T) {
	assert.Equal(t, "labexam", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotNil(t, rootCmd.PersistentPreRunE)
	assert.NotNil(t, rootCmd.PersistentPostRun)
}

func TestCorrectionsCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range correctionsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"add", "list", "promote", "export"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		want string
	}{
		{"serve", "port", "0"},
		{"extract", "out", "resultados"},
		{"extract", "no-store", "false"},
		{"seed", "force", "false"},
		{"stats", "days", "30"},
		{"stats", "json", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.DefValue)
		})
	}
}

func TestCorrectionsAdd_RequiredFlags(t *testing.T) {
	for _, name := range []string{"pdf-hash", "field", "type"} {
		f := correctionsAddCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, []string{"true"}, f.Annotations["cobra_annotation_bash_completion_one_required_flag"], name)
	}
}

func TestTruncateCell(t *testing.T) {
	assert.Equal(t, "curto", truncateCell("curto"))
	long := "Hemoglobina Glicada com valor muito longo"
	got := truncateCell(long)
	assert.Len(t, []rune(got), 30)
	assert.Equal(t, "...", got[len(got)-3:])
	assert.Equal(t, "-", dash(""))
	assert.Equal(t, "DASA", dash("DASA"))
}
