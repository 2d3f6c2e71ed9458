package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectvault/upload-agent/internal/common"
	"github.com/objectvault/upload-agent/internal/rpcclient"
)

// fakeRPC is a minimal in-memory rpcclient.Client: every upload URL points
// back at a single httptest server that always answers 2xx.
type fakeRPC struct {
	uploadURL string

	nextFileID  int32
	files       map[string]*rpcclient.FileDescription
	resumable   []rpcclient.ResumeCandidate
	uploadCalls int32

	// closeFails, when true, has CloseFile land the object in
	// "close_failed" instead of "closed" -- the remote's response to an
	// undersized non-last part.
	closeFails bool
}

func newFakeRPC(uploadURL string) *fakeRPC {
	return &fakeRPC{uploadURL: uploadURL, files: map[string]*rpcclient.FileDescription{}}
}

func (f *fakeRPC) ResolveProject(ctx context.Context, spec string) (string, error) {
	return "project-1", nil
}
func (f *fakeRPC) CreateFolder(ctx context.Context, projectID, folder string) error { return nil }
func (f *fakeRPC) FindResumable(ctx context.Context, projectID, signature string) ([]rpcclient.ResumeCandidate, error) {
	return f.resumable, nil
}
func (f *fakeRPC) CreateFile(ctx context.Context, projectID, folder, name, mimeType string, properties map[string]string) (string, error) {
	id := "new-" + itoa(atomic.AddInt32(&f.nextFileID, 1))
	f.files[id] = &rpcclient.FileDescription{ID: id, Name: name, State: "open", Parts: map[string]rpcclient.Part{}}
	return id, nil
}
func (f *fakeRPC) FileDescribe(ctx context.Context, fileID string) (rpcclient.FileDescription, error) {
	return *f.files[fileID], nil
}
func (f *fakeRPC) FileUpload(ctx context.Context, fileID string, index int) (string, error) {
	atomic.AddInt32(&f.uploadCalls, 1)
	return f.uploadURL, nil
}
func (f *fakeRPC) CloseFile(ctx context.Context, fileID string) error {
	desc := f.files[fileID]
	if f.closeFails {
		desc.State = "close_failed"
		return nil
	}
	desc.State = "closed"
	return nil
}
func (f *fakeRPC) GetFileState(ctx context.Context, fileID string) (string, error) {
	return f.files[fileID].State, nil
}

var _ rpcclient.Client = (*fakeRPC)(nil)

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func writeFile(t *testing.T, size int) string {
	t.Helper()
	path := t.TempDir() + "/payload.bin"
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func TestUploadSingleFileSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rpc := newFakeRPC(srv.URL)
	path := writeFile(t, 12*1024*1024)

	cfg := DefaultConfig()
	cfg.ChunkSize = 5 * 1024 * 1024
	cfg.Workers = 2
	cfg.ClosePollEvery = time.Millisecond
	cfg.CloseTimeout = time.Second

	s := New(cfg, rpc, srv.Client(), nil)
	outcomes, err := s.Upload(context.Background(), []FileSpec{
		{LocalPath: path, ProjectSpec: "proj", Folder: "/", ToCompress: false},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Failed)
	assert.NotEmpty(t, outcomes[0].FileID)
	assert.EqualValues(t, 3, rpc.uploadCalls) // 12MiB / 5MiB chunks -> 3 parts
}

func TestUploadMultipleFilesIndependentFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusForbidden) // first part ever requested fails hard
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rpc := newFakeRPC(srv.URL)
	good := writeFile(t, 1024)
	bad := writeFile(t, 1024)

	cfg := DefaultConfig()
	cfg.ChunkSize = 1024
	cfg.Workers = 1
	cfg.Tries = 1
	cfg.ClosePollEvery = time.Millisecond
	cfg.CloseTimeout = time.Second

	s := New(cfg, rpc, srv.Client(), nil)
	outcomes, err := s.Upload(context.Background(), []FileSpec{
		{LocalPath: bad, ProjectSpec: "proj", Folder: "/"},
		{LocalPath: good, ProjectSpec: "proj", Folder: "/"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Failed)
	assert.False(t, outcomes[1].Failed)
}

func TestUploadResumeSkipsCompletedParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rpc := newFakeRPC(srv.URL)
	path := writeFile(t, 10*1024*1024)

	// Pre-seed a resumable target with part 1 already complete. The fake
	// FindResumable ignores the query signature and always returns this,
	// which is enough to exercise the resume path.
	const chunkSize = int64(5 * 1024 * 1024)
	rpc.files["existing-id"] = &rpcclient.FileDescription{
		ID: "existing-id", Name: "payload.bin", State: "open",
		Parts: map[string]rpcclient.Part{"1": {State: "complete"}},
	}
	rpc.resumable = []rpcclient.ResumeCandidate{
		{ID: "existing-id", Describe: *rpc.files["existing-id"]},
	}

	cfg := DefaultConfig()
	cfg.ChunkSize = chunkSize
	cfg.Workers = 2
	cfg.TryResume = true
	cfg.ClosePollEvery = time.Millisecond
	cfg.CloseTimeout = time.Second

	s := New(cfg, rpc, srv.Client(), nil)
	outcomes, err := s.Upload(context.Background(), []FileSpec{
		{LocalPath: path, ProjectSpec: "proj", Folder: "/", ToCompress: false},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Failed)
	assert.Equal(t, "existing-id", outcomes[0].FileID)
	assert.EqualValues(t, 1, rpc.uploadCalls) // only the second, incomplete part
}

// TestUploadCloseFailedMarksOutcomeFailed exercises scenario 4: every part
// uploads successfully, but the remote rejects the close (undersized
// non-last part, reported lazily through get_file_state rather than the
// close call itself) -- the File must still end up Failed, surfaced as
// common.ErrCloseFailed.
func TestUploadCloseFailedMarksOutcomeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rpc := newFakeRPC(srv.URL)
	rpc.closeFails = true
	path := writeFile(t, 10*1024*1024)

	cfg := DefaultConfig()
	cfg.ChunkSize = 5 * 1024 * 1024
	cfg.Workers = 2
	cfg.ClosePollEvery = time.Millisecond
	cfg.CloseTimeout = time.Second

	s := New(cfg, rpc, srv.Client(), nil)
	outcomes, err := s.Upload(context.Background(), []FileSpec{
		{LocalPath: path, ProjectSpec: "proj", Folder: "/", ToCompress: false},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Failed)
	assert.ErrorIs(t, outcomes[0].Err, common.ErrCloseFailed)
}
