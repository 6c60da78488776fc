package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/yaml"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
)

// FileRuleLoader lê RulePacks versionados (<version>_rules.yaml, .yml ou
// .json) a partir de Dir.
type FileRuleLoader struct {
	Dir string
}

func NewFileRuleLoader(dir string) *FileRuleLoader {
	return &FileRuleLoader{Dir: dir}
}

var packExtensions = []string{".yaml", ".yml", ".json"}

func (l *FileRuleLoader) Load(ctx context.Context, version string) (*domain.RulePack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, ext := range packExtensions {
		path := filepath.Join(l.Dir, fmt.Sprintf("%s_rules%s", version, ext))
		pack, err := readPack(path, ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrRuleSourceFailed, path, err)
		}
		if pack.Version == "" {
			pack.Version = version
		}
		if err := validatePack(pack); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrRuleSourceFailed, path, err)
		}
		return &pack, nil
	}
	return nil, fmt.Errorf("%w: version %q in %s", domain.ErrRulePackNotFound, version, l.Dir)
}

// Rules implements interfaces.RuleSource.
func (l *FileRuleLoader) Rules(ctx context.Context, q domain.RuleQuery) ([]engine.PricingRule, error) {
	pack, err := l.Load(ctx, q.Version)
	if err != nil {
		return nil, err
	}
	return q.Filter(pack.Rules), nil
}

func readPack(path, ext string) (domain.RulePack, error) {
	if ext != ".json" {
		return yaml.LoadRulePack(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RulePack{}, err
	}
	var pack domain.RulePack
	if err := json.Unmarshal(data, &pack); err != nil {
		return domain.RulePack{}, fmt.Errorf("unmarshal rule pack: %w", err)
	}
	return pack, nil
}

// validatePack rejeita ids duplicados e regras inválidas.
func validatePack(pack domain.RulePack) error {
	seen := make(map[int64]bool, len(pack.Rules))
	var errs []error
	for _, r := range pack.Rules {
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate rule id %d", r.ID))
			continue
		}
		seen[r.ID] = true
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
