package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes objects into a directory served under BaseURL.
type Local struct {
	Dir     string
	BaseURL string
}

// NewLocal creates dir if needed.
func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob local: %w", err)
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Store(ctx context.Context, data []byte, contentType, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	obj := ObjectName(name, contentType)
	if err := os.WriteFile(filepath.Join(l.Dir, obj), data, 0o644); err != nil {
		return "", fmt.Errorf("blob local write: %w", err)
	}
	return l.BaseURL + "/" + obj, nil
}
