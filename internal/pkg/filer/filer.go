package filer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options for the filer
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	Secure bool
}

// Filer keeps audio files in an s3 compatible storage
type Filer struct {
	minioClient *minio.Client
	bucket      string
}

// NewFiler creates a minio filer and makes sure the bucket exists
func NewFiler(ctx context.Context, opt Options) (*Filer, error) {
	if err := validate(opt); err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("url", opt.URL).Str("user", opt.User).Str("bucket", opt.Bucket).Bool("secure", opt.Secure).Msg("minio info")
	mc, err := minio.New(opt.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.User, opt.Key, ""),
		Secure: opt.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{minioClient: mc, bucket: opt.Bucket}
	if err := res.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func validate(opt Options) error {
	if opt.URL == "" {
		return fmt.Errorf("no URL")
	}
	if opt.User == "" {
		return fmt.Errorf("no user")
	}
	if opt.Key == "" {
		return fmt.Errorf("no key")
	}
	if opt.Bucket == "" {
		return fmt.Errorf("no bucket")
	}
	return nil
}

func (f *Filer) ensureBucket(ctx context.Context) error {
	ok, err := f.minioClient.BucketExists(ctx, f.bucket)
	if err != nil {
		return fmt.Errorf("can't check bucket %s: %s: %w", f.bucket, Describe(err), err)
	}
	if ok {
		return nil
	}
	goapp.Log.Info().Str("bucket", f.bucket).Msg("creating bucket")
	if err := f.minioClient.MakeBucket(ctx, f.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("can't create bucket %s: %s: %w", f.bucket, Describe(err), err)
	}
	return nil
}

// SaveFile stores the file, size -1 means unknown
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	defer goapp.Estimate("minio save")()
	_, err := f.minioClient.PutObject(ctx, f.bucket, name, r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("can't save %s: %w", name, err)
	}
	goapp.Log.Info().Str("file", name).Msg("saved")
	return nil
}

// LoadFile returns the object, it implements Stat() (fs.FileInfo, error)
func (f *Filer) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	res, err := f.loadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *Filer) loadFile(ctx context.Context, name string) (*File, error) {
	obj, err := f.minioClient.GetObject(ctx, f.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't get %s: %w", name, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("can't stat %s: %w", name, err)
	}
	return &File{Object: obj, info: info}, nil
}

// ReadFile loads all file bytes and its content type
func (f *Filer) ReadFile(ctx context.Context, name string) ([]byte, string, error) {
	defer goapp.Estimate("minio read")()
	file, err := f.loadFile(ctx, name)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	res, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("can't read %s: %w", name, err)
	}
	return res, file.info.ContentType, nil
}

// Delete removes the file
func (f *Filer) Delete(ctx context.Context, name string) error {
	if err := f.minioClient.RemoveObject(ctx, f.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("can't delete %s: %w", name, err)
	}
	goapp.Log.Info().Str("file", name).Msg("deleted")
	return nil
}

// File wraps minio object
type File struct {
	*minio.Object
	info minio.ObjectInfo
}

// Stat returns file info
func (f *File) Stat() (fs.FileInfo, error) {
	return objectInfo{info: f.info}, nil
}

type objectInfo struct {
	info minio.ObjectInfo
}

func (o objectInfo) Name() string       { return o.info.Key }
func (o objectInfo) Size() int64        { return o.info.Size }
func (o objectInfo) Mode() fs.FileMode  { return 0444 }
func (o objectInfo) ModTime() time.Time { return o.info.LastModified }
func (o objectInfo) IsDir() bool        { return false }
func (o objectInfo) Sys() interface{}   { return o.info }

// IsNotFound checks if storage reported a missing object
func IsNotFound(err error) bool {
	var errTest minio.ErrorResponse
	if errors.As(err, &errTest) {
		return errTest.StatusCode == http.StatusNotFound || errTest.Code == "NoSuchKey"
	}
	return false
}

// Describe extracts the storage error body for logging
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var er minio.ErrorResponse
	if !errors.As(err, &er) {
		return err.Error()
	}
	b, mErr := json.Marshal(er)
	if mErr != nil {
		return er.Error()
	}
	return string(b)
}
