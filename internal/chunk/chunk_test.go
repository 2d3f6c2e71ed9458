package chunk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectvault/upload-agent/internal/common"
)

type fakeURLs struct {
	url string
	err error
}

func (f *fakeURLs) FileUpload(ctx context.Context, fileID string, index int) (string, error) {
	return f.url, f.err
}

type fakeOwner struct {
	failed    bool
	successes []int64
	failures  []error
}

func (o *fakeOwner) Failed() bool                         { return o.failed }
func (o *fakeOwner) OnChunkSuccess(bytesUploaded int64)    { o.successes = append(o.successes, bytesUploaded) }
func (o *fakeOwner) OnChunkFailure(err error)              { o.failures = append(o.failures, err) }

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "chunk-test-*")
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestChunkReadExactRange(t *testing.T) {
	content := []byte("0123456789abcdefghij")
	path := writeTempFile(t, content)

	c := New(path, "file-1", 0, 5, 10, false, false, 0, 3, nil, nil, nil)
	require.NoError(t, c.Read())
	assert.Equal(t, []byte("56789"), c.data)
	assert.True(t, c.HasData())

	c.Clear()
	assert.False(t, c.HasData())
	assert.Equal(t, int64(0), c.DataLen())
}

func TestChunkReadMissingFileIsLocalIOError(t *testing.T) {
	c := New("/does/not/exist", "file-1", 0, 0, 10, false, true, 0, 3, nil, nil, nil)
	err := c.Read()
	require.Error(t, err)
	var ioErr *common.LocalIOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestChunkUploadSetsContentLengthAndSucceedsOn2xx(t *testing.T) {
	var gotLen int64
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	content := []byte("hello chunk world")
	path := writeTempFile(t, content)
	c := New(path, "file-1", 0, 0, int64(len(content)), false, true, 0, 3, nil, NewWindow(), nil)
	require.NoError(t, c.Read())

	err := c.Upload(context.Background(), srv.Client(), &fakeURLs{url: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), gotLen)
	assert.Equal(t, content, gotBody)
}

func TestChunkUploadNon2xxIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	path := writeTempFile(t, []byte("x"))
	c := New(path, "file-1", 0, 0, 1, false, true, 0, 3, nil, nil, nil)
	require.NoError(t, c.Read())

	err := c.Upload(context.Background(), srv.Client(), &fakeURLs{url: srv.URL})
	require.Error(t, err)
	var httpErr *common.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Status)
}

func TestChunkCompressLastChunkAllowsUndersize(t *testing.T) {
	// Highly compressible data well under 5MiB post-compression; since
	// IsLast is true this must not trigger the level-1 retry warning path
	// to fail the chunk -- it should simply succeed.
	content := make([]byte, 64*1024)
	path := writeTempFile(t, content)
	c := New(path, "file-1", 0, 0, int64(len(content)), true, true, 0, 3, nil, nil, nil)
	require.NoError(t, c.Read())
	require.NoError(t, c.Compress())
	assert.Less(t, c.DataLen(), int64(MinPartSize))
}
