package storage

import (
	"context"
	"fmt"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
)

// Open creates the store selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config, opts Options) (MessageStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		return NewFirestore(ctx, FirestoreConfig{
			CredentialsFile: cfg.FirebaseCredentialsFile,
			ProjectID:       cfg.FirebaseProjectID,
			Collection:      cfg.FirestoreCollection,
		}, opts)
	case config.StorageSQLite:
		return NewSQLite(ctx, cfg.SQLitePath(), opts)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
