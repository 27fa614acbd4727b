package resource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"

	"buildweaver/internal/uri"
)

// LocalAdapter implements Adapter for the file scheme against the local
// filesystem. It is the one adapter left on the standard library; see
// DESIGN.md / SPEC_FULL.md §11 for why no corpus library improves on
// os.Stat/os.Remove for this concern.
//
// LocalAdapter is stateless and requires no client-connection cache: all of
// its state lives in the kernel's filesystem, not in a remote session.
type LocalAdapter struct{}

// NewLocalAdapter constructs a LocalAdapter.
func NewLocalAdapter() *LocalAdapter { return &LocalAdapter{} }

func (LocalAdapter) path(rawURI string) (string, error) {
	u, err := uri.Parse(rawURI)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

// Mtime returns the file's modification time. useHash is accepted for
// interface compliance but is not consulted here: the staleness oracle
// applies the hash-cache augmentation on top of whatever Mtime returns, so
// the adapter itself always reports the raw filesystem timestamp.
func (a *LocalAdapter) Mtime(_ context.Context, rawURI, _ string, _ bool) (float64, error) {
	p, err := a.path(rawURI)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &NotFoundError{URI: rawURI}
		}
		return 0, &TransportError{URI: rawURI, Err: err}
	}
	return float64(info.ModTime().UnixNano()) / 1e9, nil
}

// Digest returns the hex-encoded SHA-256 of the file's contents.
func (a *LocalAdapter) Digest(_ context.Context, rawURI, _ string) (string, error) {
	p, err := a.path(rawURI)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &NotFoundError{URI: rawURI}
		}
		return "", &TransportError{URI: rawURI, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &TransportError{URI: rawURI, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove deletes the file.
func (a *LocalAdapter) Remove(_ context.Context, rawURI, _ string) error {
	p, err := a.path(rawURI)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{URI: rawURI}
		}
		return &TransportError{URI: rawURI, Err: err}
	}
	return nil
}
