package skill

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"kota/internal/domain"

	"go.uber.org/zap"
)

// Marketplace installs shared skill definitions into the local skills
// directory.
type Marketplace struct {
	skillDir string
	logger   *zap.Logger
	client   *http.Client
}

var validSkillName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NewMarketplace creates the skills directory if needed.
func NewMarketplace(skillDir string, logger *zap.Logger) (*Marketplace, error) {
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return nil, fmt.Errorf("create skills directory: %w", err)
	}
	return &Marketplace{
		skillDir: skillDir,
		logger:   logger,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Install downloads a YAML skill definition from url, checks it and saves
// it as <name>.yaml.
func (m *Marketplace) Install(ctx context.Context, url string) (*domain.SkillDefinition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch skill: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("skill not found at %s (status %d)", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	skill, err := parseSkill(body)
	if err != nil {
		return nil, fmt.Errorf("invalid skill definition: %w", err)
	}
	if !validSkillName.MatchString(skill.Name) {
		return nil, fmt.Errorf("invalid skill name %q", skill.Name)
	}

	if err := os.WriteFile(m.path(skill.Name), body, 0o644); err != nil {
		return nil, err
	}

	m.logger.Info("skill installed", zap.String("name", skill.Name), zap.String("url", url))
	return &skill, nil
}

// Uninstall removes an installed skill.
func (m *Marketplace) Uninstall(name string) error {
	if !validSkillName.MatchString(name) {
		return fmt.Errorf("invalid skill name %q", name)
	}
	path := m.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("skill %q not installed", name)
	}
	return os.Remove(path)
}

// ListInstalled returns all locally installed skills.
func (m *Marketplace) ListInstalled() ([]domain.SkillDefinition, error) {
	return LoadFromDirectory(m.skillDir, m.logger)
}

func (m *Marketplace) path(name string) string {
	return filepath.Join(m.skillDir, name+".yaml")
}
