package resource

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSAdapter implements Adapter against Google Cloud Storage. It backs the
// "gs" scheme, one of the two remote object-store/table-warehouse schemes
// named in spec.md §4.1/§6.
//
// Grounded on SPEC_FULL.md §10 (cloud.google.com/go/storage, a direct
// dependency of jinterlante1206-AleutianLocal in this corpus).
type GCSAdapter struct {
	mu      sync.Mutex
	clients map[string]*storage.Client // keyed by credential
}

// NewGCSAdapter constructs a GCSAdapter with an empty client-connection
// cache.
func NewGCSAdapter() *GCSAdapter {
	return &GCSAdapter{clients: make(map[string]*storage.Client)}
}

// client returns a cached *storage.Client for credential, creating one on
// first use. Per spec.md §4.1, client-connection caches are keyed by
// (credential, project-or-account); for GCS the credential string (a path to
// a service-account key, or "" for ambient credentials) is a sufficient key
// since one service account maps to one project.
func (a *GCSAdapter) client(ctx context.Context, credential string) (*storage.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[credential]; ok {
		return c, nil
	}

	var opts []option.ClientOption
	if credential != "" {
		opts = append(opts, option.WithCredentialsFile(credential))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, &TransportError{URI: "gs://", Err: err}
	}
	a.clients[credential] = c
	return c, nil
}

func splitBucketObject(rawURI string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(rawURI, "gs://")
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", fmt.Errorf("resource: malformed gs uri %q", rawURI)
	}
	return rest[:idx], strings.TrimPrefix(rest[idx:], "/"), nil
}

func (a *GCSAdapter) attrs(ctx context.Context, rawURI, credential string) (*storage.ObjectAttrs, error) {
	bucket, object, err := splitBucketObject(rawURI)
	if err != nil {
		return nil, err
	}
	c, err := a.client(ctx, credential)
	if err != nil {
		return nil, err
	}
	attrs, err := c.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, &NotFoundError{URI: rawURI}
		}
		return nil, &TransportError{URI: rawURI, Err: err}
	}
	return attrs, nil
}

// Mtime returns the object's Updated timestamp. GCS objects carry a native
// CRC32C/MD5 digest, so when useHash is true the staleness oracle can use
// Digest below instead of re-reading object content.
func (a *GCSAdapter) Mtime(ctx context.Context, rawURI, credential string, _ bool) (float64, error) {
	attrs, err := a.attrs(ctx, rawURI, credential)
	if err != nil {
		return 0, err
	}
	return float64(attrs.Updated.UnixNano()) / 1e9, nil
}

// Digest returns the object's hex-encoded MD5, GCS's native per-object
// content digest.
func (a *GCSAdapter) Digest(ctx context.Context, rawURI, credential string) (string, error) {
	attrs, err := a.attrs(ctx, rawURI, credential)
	if err != nil {
		return "", err
	}
	if len(attrs.MD5) == 0 {
		return "", ErrNoDigest
	}
	return hex.EncodeToString(attrs.MD5), nil
}

// Remove deletes the object.
func (a *GCSAdapter) Remove(ctx context.Context, rawURI, credential string) error {
	bucket, object, err := splitBucketObject(rawURI)
	if err != nil {
		return err
	}
	c, err := a.client(ctx, credential)
	if err != nil {
		return err
	}
	if err := c.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return &NotFoundError{URI: rawURI}
		}
		return &TransportError{URI: rawURI, Err: err}
	}
	return nil
}
