// Package memstore is an in-memory storage.Client used to run relay pipelines in tests
// and local dry experiments without an S3 endpoint.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vbrik/cta-data-relay/core/storage"

	"github.com/minio/minio-go/v7"
)

var _ storage.Client = (*Store)(nil)

type object struct {
	data     []byte
	metadata map[string]string
	headers  http.Header
	expires  time.Time
	modified time.Time
}

// Calls counts the requests a Store has served, split by kind.
type Calls struct {
	Lists   int
	Stats   int
	Gets    int
	Puts    int
	Removes int
}

// Mutations returns the number of calls that changed bucket contents.
func (c Calls) Mutations() int {
	return c.Puts + c.Removes
}

// Store is a single-bucket, concurrency-safe object store.
type Store struct {
	mu      sync.Mutex
	bucket  string
	exists  bool
	objects map[string]*object
	calls   Calls

	// FailPut, when set, is consulted before every PutObject.
	FailPut func(key string, size int64) error
	// FailGet, when set, is consulted before every GetObject.
	FailGet func(key string) error
	// FailList, when set, is returned by the next ListObjects as an error entry.
	FailList error
}

// New returns an empty store holding one existing bucket.
func New(bucket string) *Store {
	return &Store{
		bucket:  bucket,
		exists:  true,
		objects: make(map[string]*object),
	}
}

// Seed writes an object without counting it as a call.
func (s *Store) Seed(key string, payload []byte, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = &object{
		data:     append([]byte(nil), payload...),
		metadata: canonical(metadata),
		modified: time.Now(),
	}
}

// Payload returns a copy of the object's payload and whether it exists.
func (s *Store) Payload(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Metadata returns the stored user metadata keyed by lower-case names.
func (s *Store) Metadata(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Header returns a copy of the stored content headers.
func (s *Store) Header(key string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil
	}
	return obj.headers.Clone()
}

// Keys returns the sorted object keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns a snapshot of the call counters.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Store) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bucketName == s.bucket && s.exists, nil
}

func (s *Store) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket = bucketName
	s.exists = true
	return nil
}

func (s *Store) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if err := s.checkBucket(bucketName); err != nil {
		return minio.UploadInfo{}, err
	}
	if s.FailPut != nil {
		if err := s.FailPut(objectName, objectSize); err != nil {
			return minio.UploadInfo{}, err
		}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if objectSize >= 0 && int64(len(data)) != objectSize {
		return minio.UploadInfo{}, fmt.Errorf("short body for %s: read %d of %d bytes", objectName, len(data), objectSize)
	}
	if opts.Progress != nil && len(data) > 0 {
		if _, err := io.CopyN(io.Discard, opts.Progress, int64(len(data))); err != nil && err != io.EOF {
			return minio.UploadInfo{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Puts++
	s.objects[objectName] = &object{
		data:     data,
		metadata: canonical(opts.UserMetadata),
		headers:  contentHeaders(opts),
		expires:  opts.Expires,
		modified: time.Now(),
	}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: int64(len(data))}, nil
}

func (s *Store) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	if err := s.checkBucket(bucketName); err != nil {
		return nil, err
	}
	if s.FailGet != nil {
		if err := s.FailGet(objectName); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Gets++
	obj, ok := s.objects[objectName]
	if !ok {
		return nil, notFound(objectName)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}

func (s *Store) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if err := s.checkBucket(bucketName); err != nil {
		return minio.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Stats++
	obj, ok := s.objects[objectName]
	if !ok {
		return minio.ObjectInfo{}, notFound(objectName)
	}
	return info(objectName, obj, true), nil
}

func (s *Store) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	s.mu.Lock()
	s.calls.Lists++
	failure := s.FailList
	s.FailList = nil
	var out []minio.ObjectInfo
	if failure == nil && bucketName == s.bucket {
		keys := make([]string, 0, len(s.objects))
		for k := range s.objects {
			if strings.HasPrefix(k, opts.Prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, info(k, s.objects[k], opts.WithMetadata))
		}
	}
	s.mu.Unlock()

	ch := make(chan minio.ObjectInfo, len(out)+1)
	for _, o := range out {
		ch <- o
	}
	if failure != nil {
		ch <- minio.ObjectInfo{Err: failure}
	}
	close(ch)
	return ch
}

func (s *Store) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	if err := s.checkBucket(bucketName); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Removes++
	delete(s.objects, objectName)
	return nil
}

func (s *Store) RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	errCh := make(chan minio.RemoveObjectError, 1)
	go func() {
		defer close(errCh)
		for obj := range objectsCh {
			if err := s.RemoveObject(ctx, bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				errCh <- minio.RemoveObjectError{ObjectName: obj.Key, Err: err}
			}
		}
	}()
	return errCh
}

func (s *Store) checkBucket(bucketName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucketName != s.bucket || !s.exists {
		return minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound, BucketName: bucketName}
	}
	return nil
}

func info(key string, obj *object, withMetadata bool) minio.ObjectInfo {
	oi := minio.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
	}
	if withMetadata {
		oi.Metadata = obj.headers.Clone()
		oi.ContentType = obj.headers.Get("Content-Type")
		oi.Expires = obj.expires
		oi.UserMetadata = minio.StringMap{}
		for k, v := range obj.metadata {
			oi.UserMetadata[k] = v
		}
	}
	return oi
}

// canonical mimics S3, which returns user metadata names in canonical header form.
func canonical(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

func contentHeaders(opts minio.PutObjectOptions) http.Header {
	h := http.Header{}
	for name, v := range map[string]string{
		"Content-Type":        opts.ContentType,
		"Content-Encoding":    opts.ContentEncoding,
		"Content-Disposition": opts.ContentDisposition,
		"Content-Language":    opts.ContentLanguage,
		"Cache-Control":       opts.CacheControl,
	} {
		if v != "" {
			h.Set(name, v)
		}
	}
	return h
}

func notFound(key string) error {
	return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, Key: key, Message: "The specified key does not exist."}
}
