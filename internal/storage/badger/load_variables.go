// -----------------------------------------------------------------------
// Variable Loading - Seeds the KV store from TOML variable files
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// variableEntry is one [key_name] section in a variables TOML file:
//
//	[anthropic_api_key]
//	value = "sk-..."
//	description = "optional"
type variableEntry struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadVariablesFromFiles seeds the KV store from variables.toml in
// dirPath plus any .toml files in a variables/ subdirectory. Missing
// files are not an error; individual bad entries are logged and skipped.
func (m *Manager) LoadVariablesFromFiles(ctx context.Context, dirPath string) error {
	m.logger.Debug().Str("dir", dirPath).Msg("Loading variables from files")

	loaded := 0

	variablesFile := filepath.Join(dirPath, "variables.toml")
	if _, err := os.Stat(variablesFile); err == nil {
		loaded += m.loadVariableFile(ctx, variablesFile)
	}

	variablesDir := filepath.Join(dirPath, "variables")
	if info, err := os.Stat(variablesDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(variablesDir)
		if err != nil {
			m.logger.Warn().Err(err).Str("dir", variablesDir).Msg("Failed to read variables directory")
		} else {
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
					continue
				}
				loaded += m.loadVariableFile(ctx, filepath.Join(variablesDir, entry.Name()))
			}
		}
	}

	m.logger.Debug().Int("loaded", loaded).Msg("Finished loading variables from files")
	return nil
}

// loadVariableFile upserts every section of one TOML file into the KV
// store, returning the count stored
func (m *Manager) loadVariableFile(ctx context.Context, filePath string) int {
	content, err := os.ReadFile(filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to read variable file")
		return 0
	}

	var variables map[string]variableEntry
	if err := toml.Unmarshal(content, &variables); err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to parse variable file")
		return 0
	}

	fileName := filepath.Base(filePath)
	loaded := 0
	for key, variable := range variables {
		if variable.Value == "" {
			m.logger.Warn().Str("file", fileName).Str("key", key).Msg("Skipping variable with empty value")
			continue
		}

		description := variable.Description
		if description == "" {
			description = "Loaded from " + fileName
		}

		if _, err := m.kv.Upsert(ctx, key, variable.Value, description); err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable")
			continue
		}
		loaded++
	}

	return loaded
}
