package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestModelsCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "* toolbaz-v4.5-fast")
	assert.Contains(t, out.String(), "gpt-5")
}

func TestModelsCmdJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--json"})

	require.NoError(t, cmd.Execute())
	var models []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &models))
	assert.NotEmpty(t, models)
}

func TestModelsCmdBadProfile(t *testing.T) {
	t.Setenv("SITE_PROFILE", "missing.yaml")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"models"})

	assert.Error(t, cmd.Execute())
}
