package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/glorpus-work/regindex/internal/logger"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/model"
)

// SearchPackages searches every enabled repository serving platform (all of
// them when platform is empty) for text.
func (m *Manager) SearchPackages(ctx context.Context, text, platform string) (*AggregatedResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySearch
	}
	return m.Query(ctx, Request{Text: text, Platform: platform})
}

// GetPackage returns the newest record of name in one repository.
func (m *Manager) GetPackage(ctx context.Context, repository, name string) (*model.PackageRecord, error) {
	return m.getPackage(ctx, Request{Repositories: []string{repository}, Package: name})
}

func (m *Manager) getPackage(ctx context.Context, req Request) (*model.PackageRecord, error) {
	if req.Package == "" {
		return nil, errutils.ErrPackageNameEmpty
	}
	res, err := m.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		if len(res.Errors) > 0 {
			return nil, res.Errors[0]
		}
		return nil, errutils.ErrPackageNotFoundIn(strings.Join(req.Repositories, ","), req.Package)
	}
	rec := res.Records[0]
	return &rec, nil
}

// GetPackages looks up several names in one repository. A bulk repository
// answers every name from one listing. For an API repository, names missing
// from the cache are fetched concurrently in a single batch, and each name
// fails on its own. An error is returned only when the repository itself
// cannot be queried.
func (m *Manager) GetPackages(ctx context.Context, repository string, names []string) (map[string]PackageResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	repo, ok := m.repos[repository]
	if !ok {
		return nil, m.unknown(repository)
	}
	if _, ok := ctx.Deadline(); !ok && m.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.queryTimeout)
		defer cancel()
	}

	out := make(map[string]PackageResult, len(names))
	if !repo.IsAPI() {
		records, _, err := m.load(ctx, repo, m.bulkLoad(repo))
		if err != nil && len(records) == 0 {
			return nil, &RepositoryError{Repository: repository, Err: err}
		}
		for _, name := range names {
			out[name] = newestResult(repository, records, name)
		}
		return out, nil
	}

	var missing []string
	stale := make(map[string][]model.PackageRecord)
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		if name == "" {
			out[name] = PackageResult{Err: errutils.ErrPackageNameEmpty}
			continue
		}
		l := m.packageLoad(repo, name)
		entry, found, expired := m.store.Get(l.key)
		switch {
		case found && !expired:
			m.emit(Event{Phase: PhaseCached, Repository: repo.Name, Key: l.key, Records: len(entry.Records)})
			out[name] = newestResult(repository, entry.Records, name)
		case !found && m.isNegative(l):
			out[name] = PackageResult{Err: errutils.ErrPackageNotFoundIn(repository, name)}
		default:
			if found {
				stale[name] = entry.Records
			}
			// placeholder so duplicates are skipped
			out[name] = PackageResult{}
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		logger.Debug("Fetching package batch", logger.Fields{"repository": repository, "packages": len(missing)})
		batch := m.fetchBatch(ctx, repo, missing, false)
		for _, name := range missing {
			res, ok := batch[name]
			if !ok {
				res.err = errutils.Wrapf(ctx.Err(), "fetch %s", name)
			}
			if res.err == nil {
				out[name] = newestResult(repository, res.records, name)
				continue
			}
			if records, ok := stale[name]; ok {
				r := newestResult(repository, records, name)
				r.Err = &RepositoryError{Repository: repository, Err: res.err, Stale: true}
				out[name] = r
				continue
			}
			out[name] = PackageResult{Err: &RepositoryError{Repository: repository, Err: res.err}}
		}
	}
	return out, nil
}

func newestResult(repository string, records []model.PackageRecord, name string) PackageResult {
	rec, ok := model.Newest(exactName(records, name))
	if !ok {
		return PackageResult{Err: errutils.ErrPackageNotFoundIn(repository, name)}
	}
	return PackageResult{Record: &rec}
}

// ListPackages returns every package of a bulk repository, one record per
// package at its highest version.
func (m *Manager) ListPackages(ctx context.Context, repository string) (*AggregatedResult, error) {
	repo, ok := m.repos[repository]
	if !ok {
		return nil, m.unknown(repository)
	}
	if repo.IsAPI() {
		return nil, fmt.Errorf("%w: %s is an api repository", ErrListUnsupported, repository)
	}
	return m.Query(ctx, Request{Repositories: []string{repository}})
}

// GetCurrentVersion returns the highest published version of name. API
// repositories with a versions endpoint are asked for the full version list.
func (m *Manager) GetCurrentVersion(ctx context.Context, repository, name string) (string, error) {
	if name == "" {
		return "", errutils.ErrPackageNameEmpty
	}
	repo, ok := m.repos[repository]
	if !ok {
		return "", m.unknown(repository)
	}
	if !repo.IsAPI() || repo.Endpoints.Versions.IsZero() {
		rec, err := m.GetPackage(ctx, repository, name)
		if err != nil {
			return "", err
		}
		return rec.Version, nil
	}
	if m.closed.Load() {
		return "", ErrManagerClosed
	}

	if _, ok := ctx.Deadline(); !ok && m.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.queryTimeout)
		defer cancel()
	}
	records, _, err := m.load(ctx, repo, m.versionsLoad(repo, name))
	if err != nil && len(records) == 0 {
		return "", &RepositoryError{Repository: repository, Err: err}
	}
	newest, ok := model.Newest(exactName(records, name))
	if !ok {
		return "", errutils.ErrPackageNotFoundIn(repository, name)
	}
	return newest.Version, nil
}

// Lookup resolves a package reference: "<repository>/<name>[@version]" or a
// package URL such as "pkg:npm/left-pad@1.3.0". Package URLs are answered by
// every repository whose type maps to the purl type.
func (m *Manager) Lookup(ctx context.Context, reference string) (*model.PackageRecord, error) {
	ref, err := model.ParseRef(reference)
	if err != nil {
		return nil, err
	}
	req := Request{Package: ref.Name, Version: ref.Version}
	if !ref.IsPURL() {
		req.Repositories = []string{ref.Repository}
		return m.getPackage(ctx, req)
	}

	for _, repo := range m.order {
		if model.PURLType(repo.Type) == ref.Type {
			req.Repositories = append(req.Repositories, repo.Name)
		}
	}
	if len(req.Repositories) == 0 {
		return nil, fmt.Errorf("%w: no repository of purl type %q", ErrNoMatchingRepository, ref.Type)
	}
	return m.getPackage(ctx, req)
}

func exactName(records []model.PackageRecord, name string) []model.PackageRecord {
	out := make([]model.PackageRecord, 0, len(records))
	for _, r := range records {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}
