// Package blob stores uploaded screenshots and returns the URL they are served from.
package blob

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Store persists one object and returns its public URL.
type Store interface {
	Store(ctx context.Context, data []byte, contentType, name string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend         string // "local" or "gcs"
	Dir             string
	BaseURL         string
	Bucket          string
	CredentialsFile string
}

// New builds the configured backend. The returned close func releases backend
// resources and is never nil.
func New(ctx context.Context, cfg Config) (Store, func() error, error) {
	switch cfg.Backend {
	case "", "local":
		l, err := NewLocal(cfg.Dir, cfg.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		return l, func() error { return nil }, nil
	case "gcs":
		g, err := NewGCS(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}

// ObjectName returns a collision-free object name that keeps the extension of
// name, falling back to one derived from contentType.
func ObjectName(name, contentType string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if ext == "" && contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return uuid.NewString() + ext
}
