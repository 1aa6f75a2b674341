package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/errutils"
)

// Repositories is the outcome of loading every definition.
type Repositories struct {
	Enabled  []*Repository
	Disabled []Disabled
}

// LoadProviders reads one definition per .yaml, .yml or .toml file in dir,
// in file-name order. A missing directory yields nothing. Files that cannot be
// decoded come back as ConfigErrors keyed by the file's base name.
func LoadProviders(dir string) ([]*RepositoryConfig, []*ConfigError) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Cannot read providers directory", logger.Fields{"dir": dir, "error": err.Error()})
		}
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		defs []*RepositoryConfig
		errs []*ConfigError
	)
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
			continue
		}
		path := filepath.Join(dir, name)
		def, err := LoadRepositoryFile(path)
		if err != nil {
			var ce *ConfigError
			if !errors.As(err, &ce) {
				ce = newConfigError(strings.TrimSuffix(name, filepath.Ext(name)), "", err)
			}
			errs = append(errs, ce)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

// LoadRepositoryFile decodes a single definition file. A definition without a
// name takes the file's base name.
func LoadRepositoryFile(path string) (*RepositoryConfig, error) {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
		return nil, newConfigError(base, "", errutils.Wrapf(ErrUnsupportedFile, "%s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errutils.Wrapf(err, "failed to read repository definition %s", path)
	}

	var def RepositoryConfig
	if err := decode(data, formatOf(path), &def); err != nil {
		return nil, newConfigError(base, "", errutils.Wrap(errutils.ErrConfigParse, err.Error()))
	}
	if strings.TrimSpace(def.Name) == "" {
		def.Name = base
	}
	def.Source = path
	return &def, nil
}

// LoadRepositories compiles the inline definitions followed by those in the
// providers directory. Invalid, duplicate, and switched-off definitions are
// returned as Disabled with their reason; the rest are Enabled.
func (c *Config) LoadRepositories() *Repositories {
	defs := append([]*RepositoryConfig{}, c.Repositories...)
	fromDir, fileErrs := LoadProviders(c.Settings.ProvidersDir)
	defs = append(defs, fromDir...)

	out := &Repositories{}
	for _, ce := range fileErrs {
		logger.Warn("Repository definition rejected", logger.Fields{"repository": ce.Repository, "error": ce.Error()})
		out.Disabled = append(out.Disabled, Disabled{Name: ce.Repository, Reason: ce})
	}

	seen := make(map[string]bool)
	for i, def := range defs {
		if def == nil {
			continue
		}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			ce := newConfigError("", "name", errutils.Wrapf(errutils.ErrEmptyRepositoryName, "definition %d", i))
			logger.Warn("Repository definition rejected", logger.Fields{"source": def.Source, "error": ce.Error()})
			out.Disabled = append(out.Disabled, Disabled{Source: def.Source, Reason: ce})
			continue
		}
		if seen[name] {
			ce := newConfigError(name, "name", errutils.ErrRepositoryExistsWithName(name))
			logger.Warn("Repository definition rejected", logger.Fields{"repository": name, "error": ce.Error()})
			out.Disabled = append(out.Disabled, Disabled{Name: name, Source: def.Source, Reason: ce})
			continue
		}
		seen[name] = true

		if !def.IsEnabled() {
			out.Disabled = append(out.Disabled, Disabled{Name: name, Source: def.Source, Reason: errutils.ErrRepositoryDisabled})
			continue
		}

		repo, err := Compile(def)
		if err != nil {
			logger.Warn("Repository definition rejected", logger.Fields{"repository": name, "error": err.Error()})
			out.Disabled = append(out.Disabled, Disabled{Name: name, Source: def.Source, Reason: err})
			continue
		}
		logger.Debug("Repository loaded", logger.Fields{
			"repository": repo.Name,
			"query_type": string(repo.QueryType),
			"format":     string(repo.Parsing.Format),
		})
		out.Enabled = append(out.Enabled, repo)
	}
	return out
}
