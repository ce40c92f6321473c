package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style S3 calls S3Service makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	deletes []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodPut && key != "":
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && query.Get("list-type") == "2":
		prefix := query.Get("prefix")
		var b strings.Builder
		fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><IsTruncated>false</IsTruncated>`, bucket, prefix)
		for k, v := range f.objects {
			if strings.HasPrefix(k, prefix) {
				fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2024-01-02T03:04:05.000Z</LastModified><Size>%d</Size></Contents>`, k, len(v))
			}
		}
		b.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, b.String())
	case r.Method == http.MethodPost && query.Has("delete"):
		body, _ := io.ReadAll(r.Body)
		for k := range f.objects {
			if strings.Contains(string(body), "<Key>"+k+"</Key>") {
				f.deletes = append(f.deletes, k)
				delete(f.objects, k)
			}
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func newTestS3(t *testing.T) (*S3Service, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
		}),
	})
	return NewS3Service(client), fake
}

func TestS3Service_UploadListDelete(t *testing.T) {
	ctx := context.Background()
	svc, fake := newTestS3(t)

	loc, err := svc.Upload(ctx, strings.NewReader(`{"users":[]}`), UploadOptions{
		Bucket:      "exports",
		Key:         "/user-exports/users-1.json",
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/user-exports/users-1.json", loc)
	stored := fake.objects["user-exports/users-1.json"]
	assert.Contains(t, stored, `{"users":[]}`)

	objects, err := svc.ListObjects(ctx, "exports", "user-exports/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "user-exports/users-1.json", objects[0].Key)
	assert.Equal(t, int64(len(stored)), objects[0].Size)
	require.NotNil(t, objects[0].LastModified)

	require.NoError(t, svc.DeletePrefix(ctx, "exports", "user-exports/"))
	assert.Equal(t, []string{"user-exports/users-1.json"}, fake.deletes)
	assert.Empty(t, fake.objects)
}

func TestS3Service_RequiresBucketAndKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestS3(t)

	_, err := svc.Upload(ctx, strings.NewReader("x"), UploadOptions{Key: "k"})
	assert.Error(t, err)
	_, err = svc.Upload(ctx, strings.NewReader("x"), UploadOptions{Bucket: "b"})
	assert.Error(t, err)
	_, err = svc.ListObjects(ctx, "", "")
	assert.Error(t, err)
	assert.Error(t, svc.DeletePrefix(ctx, "b", "  "))
	_, err = svc.GetObjectURL(ctx, "b", "", time.Minute)
	assert.Error(t, err)
}

func TestS3Service_GetObjectURL(t *testing.T) {
	svc, _ := newTestS3(t)

	url, err := svc.GetObjectURL(context.Background(), "exports", "user-exports/users-1.json", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "/exports/user-exports/users-1.json")
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=900")
}
