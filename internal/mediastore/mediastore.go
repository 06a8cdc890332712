// Package mediastore stores uploaded video files and images and hands back
// public URLs for them.
package mediastore

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// Uploader persists a media object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
}

// ObjectKey builds a date-partitioned key for an upload, keeping the
// original extension so served URLs stay recognizable.
func ObjectKey(category string, filename string) string {
	extension := path.Ext(filename)
	now := time.Now().UTC()
	return fmt.Sprintf("%s/%s/%s%s", category, now.Format("2006/01/02"), uuid.NewString(), extension)
}
