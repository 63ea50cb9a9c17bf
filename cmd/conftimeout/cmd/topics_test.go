package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		topicsOutputFormat = "table"
		topicsModuleFilter = ""
		topicsScopeFilter = ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTopicsList_Table(t *testing.T) {
	out, err := run(t, "topics", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "conftimeout.input")
	assert.Contains(t, out, "conftimeout.output")
	assert.Contains(t, out, "conftimeout.status")
}

func TestTopicsList_JSONByModule(t *testing.T) {
	out, err := run(t, "topics", "list", "--format", "json", "--module", "conftimeout")
	require.NoError(t, err)

	var resp struct {
		Topics []TopicDisplay `json:"topics"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 5, resp.Count)
	for _, topic := range resp.Topics {
		assert.Equal(t, "conftimeout", topic.Module)
	}
}

func TestTopicsList_BadScope(t *testing.T) {
	_, err := run(t, "topics", "list", "--scope", "galaxy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scope")
}

func TestTopicsGet(t *testing.T) {
	out, err := run(t, "topics", "get", "conftimeout.status")
	require.NoError(t, err)
	assert.Contains(t, out, "Name:        conftimeout.status")
	assert.Contains(t, out, "activeCount")

	_, err = run(t, "topics", "get", "conftimeout.nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTopicsValidate(t *testing.T) {
	out, err := run(t, "topics", "validate", "conftimeout.output")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, err = run(t, "topics", "validate", "Bad.Name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name validation failed")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "conftimeout v"+version+"\n", out)
}
