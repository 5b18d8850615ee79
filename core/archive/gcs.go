package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS is an archive kept in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Store = (*GCS)(nil)

// NewGCS opens a client for bucket. Names are stored under prefix.
func NewGCS(ctx context.Context, bucket, prefix, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs archive requires a bucket")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the underlying client.
func (a *GCS) Close() error {
	return a.client.Close()
}

// List returns every object under the prefix. Directories are implied by
// object names, as on the filesystem backend.
func (a *GCS) List(ctx context.Context, filter EntryType) ([]Entry, error) {
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: a.prefix})
	var out []Entry
	seen := make(map[string]bool)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", a.bucket, a.prefix, err)
		}
		name := strings.TrimPrefix(attrs.Name, a.prefix)
		if matches(filter, TypeDir) {
			for _, dir := range parentDirs(name) {
				if !seen[dir] {
					seen[dir] = true
					out = append(out, Entry{Name: dir, Type: TypeDir})
				}
			}
		}
		// Folder placeholders carry no content.
		if name == "" || strings.HasSuffix(name, "/") || !matches(filter, TypeRegular) {
			continue
		}
		out = append(out, Entry{
			Name:    name,
			Size:    attrs.Size,
			ModTime: attrs.Updated,
			Type:    TypeRegular,
		})
	}
	return out, nil
}

// parentDirs returns the directories implied by a slash-separated name,
// outermost first.
func parentDirs(name string) []string {
	var dirs []string
	for i := 0; i < len(name); i++ {
		if name[i] == '/' && i > 0 {
			dirs = append(dirs, name[:i])
		}
	}
	return dirs
}

func (a *GCS) Copy(ctx context.Context, src, name string, opts CopyOptions) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	obj := a.client.Bucket(a.bucket).Object(a.prefix + name)
	if !opts.Overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, in); err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = w.Close()
		return classifyGCS(a.URL(name), err)
	}
	if err := w.Close(); err != nil {
		return classifyGCS(a.URL(name), err)
	}
	return nil
}

func (a *GCS) Checksum(ctx context.Context, name, algorithm string) (string, error) {
	if !strings.EqualFold(algorithm, "md5") {
		return "", fmt.Errorf("%s: %w", algorithm, ErrUnsupportedChecksum)
	}
	attrs, err := a.client.Bucket(a.bucket).Object(a.prefix + name).Attrs(ctx)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", a.URL(name), err)
	}
	if len(attrs.MD5) == 0 {
		return "", fmt.Errorf("%s has no md5 (composite object)", a.URL(name))
	}
	return hex.EncodeToString(attrs.MD5), nil
}

func (a *GCS) URL(name string) string {
	return "gs://" + a.bucket + "/" + a.prefix + name
}

// classifyGCS maps a failed DoesNotExist precondition onto ErrAlreadyExists.
func classifyGCS(url string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%s: %w", url, ErrAlreadyExists)
	}
	return fmt.Errorf("copy to %s: %w", url, err)
}
