package repository

import (
	"context"

	"github.com/glorpus-work/regindex/pkg/config"
	"github.com/glorpus-work/regindex/pkg/model"
)

//go:generate mockgen -destination=./mocks/fetcher.go . Fetcher

// Fetcher retrieves records over the network. *fetcher.Fetcher implements it.
type Fetcher interface {
	FetchBulk(ctx context.Context, repo *config.Repository) ([]model.PackageRecord, error)
	FetchPackage(ctx context.Context, repo *config.Repository, name string) ([]model.PackageRecord, error)
	Search(ctx context.Context, repo *config.Repository, text string) ([]model.PackageRecord, error)
	FetchVersions(ctx context.Context, repo *config.Repository, name string) ([]model.PackageRecord, error)
}
