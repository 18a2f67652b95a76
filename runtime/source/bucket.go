// Package source reads workflow definitions and render components from a
// gocloud.dev blob bucket.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/BDNK1/stepflow/runtime"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// ComponentsDir holds render library components, one expression per
// .expr object, relative to the bucket prefix.
const ComponentsDir = "components/"

var ErrNotFound = errors.New("definition not found")

// Bucket supplies raw definitions stored as .yaml or .yml objects.
type Bucket struct {
	bucket *blob.Bucket
	url    string
	prefix string
}

var _ runtime.DefinitionSource = (*Bucket)(nil)

// Open opens a bucket URL (mem://, file:///dir, s3://...) or a plain
// directory path.
func Open(ctx context.Context, location, prefix string) (*Bucket, error) {
	url, err := URLFor(location)
	if err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error opening bucket %s: %w", url, err)
	}
	return New(bucket, url, prefix), nil
}

func New(bucket *blob.Bucket, url, prefix string) *Bucket {
	return &Bucket{bucket: bucket, url: url, prefix: prefix}
}

// URLFor turns a plain directory path into a file:// URL. Values that
// already carry a scheme are returned unchanged.
func URLFor(location string) (string, error) {
	if strings.Contains(location, "://") {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("error resolving %s: %w", location, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// List reads every definition under the prefix in key order.
func (b *Bucket) List(ctx context.Context) ([]runtime.RawDefinition, error) {
	var defs []runtime.RawDefinition
	err := b.each(ctx, b.prefix, isDefinition, func(key string, data []byte) {
		defs = append(defs, runtime.RawDefinition{Text: data, Locator: b.locator(key)})
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

// Components returns library component sources keyed by file name without
// the .expr extension.
func (b *Bucket) Components(ctx context.Context) (map[string]string, error) {
	components := make(map[string]string)
	err := b.each(ctx, b.prefix+ComponentsDir, isComponent, func(key string, data []byte) {
		name := strings.TrimSuffix(path.Base(key), ".expr")
		components[name] = string(data)
	})
	if err != nil {
		return nil, err
	}
	return components, nil
}

// Get reads a single definition by key relative to the prefix.
func (b *Bucket) Get(ctx context.Context, key string) (runtime.RawDefinition, error) {
	full := b.prefix + key
	data, err := b.bucket.ReadAll(ctx, full)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return runtime.RawDefinition{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return runtime.RawDefinition{}, err
	}
	return runtime.RawDefinition{Text: data, Locator: b.locator(full)}, nil
}

// Put stores data under key relative to the prefix.
func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	return b.bucket.WriteAll(ctx, b.prefix+key, data, nil)
}

func (b *Bucket) Close() error {
	return b.bucket.Close()
}

func (b *Bucket) each(ctx context.Context, prefix string, match func(string) bool, fn func(key string, data []byte)) error {
	iter := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error listing %s: %w", b.url, err)
		}
		if obj.IsDir || !match(obj.Key) {
			continue
		}

		data, err := b.bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", b.locator(obj.Key), err)
		}
		fn(obj.Key, data)
	}
}

func (b *Bucket) locator(key string) string {
	return strings.TrimRight(b.url, "/") + "/" + key
}

func isDefinition(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	return ext == ".yaml" || ext == ".yml"
}

func isComponent(key string) bool {
	return strings.ToLower(path.Ext(key)) == ".expr"
}
