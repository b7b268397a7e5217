package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestReplaceKeyReferences_Simple(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"github-token": "ghp_12345"}

	input := "token = {github-token}"
	expected := "token = ghp_12345"

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_Multiple(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"key1": "val1",
		"key2": "val2",
		"key3": "val3",
	}

	input := "key1={key1}, key2={key2}, key3={key3}"
	expected := "key1=val1, key2=val2, key3=val3"

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_MissingKey(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"other-key": "value"}

	input := "token = {missing-key}"
	expected := "token = {missing-key}" // Unchanged

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_InvalidSyntax(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"invalid key": "value"}

	// Space in key name - doesn't match regex
	input := "token = {invalid key}"
	expected := "token = {invalid key}" // Unchanged

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_EmptyInput(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	result := ReplaceKeyReferences("", kvMap, logger)
	assert.Equal(t, "", result)
}

func TestReplaceKeyReferences_NoReferences(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	input := "token = static-value"
	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, input, result)
}

func TestReplaceInStruct_StringFields(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"github-token":      "ghp_12345",
		"anthropic-api-key": "sk-ant-789",
	}

	type target struct {
		Token  string
		APIKey string
		Static string
	}

	s := &target{
		Token:  "{github-token}",
		APIKey: "{anthropic-api-key}",
		Static: "unchanged",
	}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "ghp_12345", s.Token)
	assert.Equal(t, "sk-ant-789", s.APIKey)
	assert.Equal(t, "unchanged", s.Static)
}

func TestReplaceInStruct_NestedStruct(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"github-token": "ghp_12345"}

	type inner struct {
		Token string
	}
	type outer struct {
		GitHub inner
	}

	s := &outer{GitHub: inner{Token: "{github-token}"}}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "ghp_12345", s.GitHub.Token)
}

func TestReplaceInStruct_PointerField(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"secret": "hunter2"}

	type inner struct {
		Value string
	}
	type outer struct {
		Inner *inner
		Nil   *inner
	}

	s := &outer{Inner: &inner{Value: "{secret}"}}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", s.Inner.Value)
	assert.Nil(t, s.Nil)
}

func TestReplaceInStruct_StringMap(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"interval": "2s"}

	type target struct {
		Intervals map[string]string
	}

	s := &target{Intervals: map[string]string{"job_progress": "{interval}"}}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "2s", s.Intervals["job_progress"])
}

func TestReplaceInStruct_StringSlice(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"pattern": "HTTP request"}

	type target struct {
		Patterns []string
	}

	s := &target{Patterns: []string{"{pattern}", "static"}}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"HTTP request", "static"}, s.Patterns)
}

func TestReplaceInStruct_NotAPointer(t *testing.T) {
	logger := createTestLogger()

	type target struct{ Value string }
	err := ReplaceInStruct(target{}, map[string]string{}, logger)
	assert.Error(t, err)
}

func TestReplaceInStruct_Config(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"github-token":      "ghp_12345",
		"anthropic-api-key": "sk-ant-789",
		"webhook-secret":    "whsec_abc",
	}

	config := NewDefaultConfig()
	config.GitHub.Token = "{github-token}"
	config.Webhook.Secret = "{webhook-secret}"
	config.LLM.Planner.APIKey = "{anthropic-api-key}"

	err := ReplaceInStruct(config, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "ghp_12345", config.GitHub.Token)
	assert.Equal(t, "whsec_abc", config.Webhook.Secret)
	assert.Equal(t, "sk-ant-789", config.LLM.Planner.APIKey)
	// Untouched fields keep their defaults
	assert.Equal(t, "copilot-assisted", config.Webhook.Label)
}
