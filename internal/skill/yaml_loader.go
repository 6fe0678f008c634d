package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kota/internal/domain"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadFromDirectory loads skill definitions from YAML files in a directory.
// Files must have .yaml or .yml extension and conform to the SkillDefinition schema.
func LoadFromDirectory(dir string, logger *zap.Logger) ([]domain.SkillDefinition, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("skills directory does not exist, skipping", zap.String("dir", dir))
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var skills []domain.SkillDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read skill file", zap.String("path", path), zap.Error(err))
			continue
		}

		skill, err := parseSkill(data)
		if err != nil {
			logger.Warn("cannot parse skill file", zap.String("path", path), zap.Error(err))
			continue
		}
		if skill.Name == "" {
			skill.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}

		logger.Info("loaded user skill", zap.String("name", skill.Name), zap.String("path", path))
		skills = append(skills, skill)
	}

	return skills, nil
}

func parseSkill(data []byte) (domain.SkillDefinition, error) {
	var skill domain.SkillDefinition
	if err := yaml.Unmarshal(data, &skill); err != nil {
		return skill, err
	}
	if strings.TrimSpace(skill.Prompt) == "" {
		return skill, fmt.Errorf("skill %q has no prompt", skill.Name)
	}
	return skill, nil
}
