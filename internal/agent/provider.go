package agent

import (
	"context"
	"fmt"

	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/materialize"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/remote/gdrive"
	"github.com/openmined/mirrorbox/internal/remote/localdrive"
	"github.com/openmined/mirrorbox/internal/remote/objstore"
)

// NewDirectory builds the provider named by cfg.Provider. The returned close
// func releases provider resources and is never nil.
func NewDirectory(ctx context.Context, cfg *config.Config) (remote.Directory, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case config.ProviderLocalDrive:
		drive, err := localdrive.Open(cfg.LocalDrive.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("localdrive: %w", err)
		}
		return drive, drive.Close, nil

	case config.ProviderGDrive:
		client, err := gdrive.New(cfg.GDrive)
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil

	case config.ProviderS3:
		store, err := objstore.NewAWS(ctx, cfg.S3.UnderParent(cfg.RemoteParent))
		if err != nil {
			return nil, nil, fmt.Errorf("s3: %w", err)
		}
		return store, noop, nil

	case config.ProviderMinio:
		store, err := objstore.NewMinio(cfg.Minio.UnderParent(cfg.RemoteParent))
		if err != nil {
			return nil, nil, fmt.Errorf("minio: %w", err)
		}
		return store, noop, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", remote.ErrUnknownProvider, cfg.Provider)
	}
}

// materializeOptions places the label folder under cfg.RemoteParent. Object
// stores take the parent as a key prefix instead, see NewDirectory.
func materializeOptions(cfg *config.Config) []materialize.Option {
	if cfg.RemoteParent == "" {
		return nil
	}
	switch cfg.Provider {
	case config.ProviderS3, config.ProviderMinio:
		return nil
	}
	return []materialize.Option{materialize.WithRootParent(remote.ID(cfg.RemoteParent))}
}
