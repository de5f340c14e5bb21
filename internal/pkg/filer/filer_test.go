package filer

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_validate(t *testing.T) {
	tests := []struct {
		name    string
		opt     Options
		wantErr bool
	}{
		{name: "OK", opt: Options{URL: "minio:9000", User: "u", Key: "k", Bucket: "b"}, wantErr: false},
		{name: "no url", opt: Options{User: "u", Key: "k", Bucket: "b"}, wantErr: true},
		{name: "no user", opt: Options{URL: "minio:9000", Key: "k", Bucket: "b"}, wantErr: true},
		{name: "no key", opt: Options{URL: "minio:9000", User: "u", Bucket: "b"}, wantErr: true},
		{name: "no bucket", opt: Options{URL: "minio:9000", User: "u", Key: "k"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, validate(tt.opt) != nil)
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", minio.ErrorResponse{Code: "NoSuchKey"})))
	assert.False(t, IsNotFound(minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"}))
	assert.False(t, IsNotFound(errors.New("olia")))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "olia", Describe(errors.New("olia")))
	got := Describe(fmt.Errorf("wrap: %w", minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied",
		Message: "Access Denied.", BucketName: "audio", Key: "u1/a.mp3"}))
	assert.Contains(t, got, `"Code":"AccessDenied"`)
	assert.Contains(t, got, `"Key":"u1/a.mp3"`)
	assert.Contains(t, got, `"Message":"Access Denied."`)
}

func TestFile_Stat(t *testing.T) {
	now := time.Now()
	f := &File{info: minio.ObjectInfo{Key: "u1/a.mp3", Size: 10, LastModified: now}}
	st, err := f.Stat()
	require.Nil(t, err)
	assert.Equal(t, "u1/a.mp3", st.Name())
	assert.Equal(t, int64(10), st.Size())
	assert.Equal(t, now, st.ModTime())
	assert.False(t, st.IsDir())
}
