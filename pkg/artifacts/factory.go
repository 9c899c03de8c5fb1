package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
)

type StoreType string

const (
	StoreTypeFS StoreType = "fs"
	StoreTypeS3 StoreType = "s3"
)

type Config struct {
	Type    StoreType `yaml:"type"`
	DataDir string    `yaml:"data_dir"`
	S3      S3Config  `yaml:"s3"`
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeFS:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "artifacts"))
	case StoreTypeS3:
		if cfg.S3.Region == "" {
			cfg.S3.Region = "us-east-1"
		}
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", cfg.Type)
	}
}
