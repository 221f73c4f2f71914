package enum

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/shardex/pkg/types"
)

type fakeObjectStore struct {
	objects   map[string]string
	listErr   error
	failKey   string
	downloads []string
}

func (f *fakeObjectStore) List(ctx context.Context, prefix string) ([]objectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []objectInfo
	for key, body := range f.objects {
		out = append(out, objectInfo{Key: key, Size: int64(len(body))})
	}
	return out, nil
}

func (f *fakeObjectStore) Download(ctx context.Context, key, dst string) error {
	f.downloads = append(f.downloads, key)
	if key == f.failKey {
		return errors.New("network down")
	}
	return os.WriteFile(dst, []byte(f.objects[key]), 0o644)
}

func TestObjectEnumerator(t *testing.T) {
	store := &fakeObjectStore{objects: map[string]string{
		"mirror/b/b-1.0.tar.gz":           "bbb",
		"mirror/a/a-1.0-py3-none-any.whl": "aaaa",
		"mirror/a/README.md":              "skip",
		"mirror/vendor/v-1.0.zip":         "v",
		"mirror/":                         "",
	}}
	e := newObjectEnumerator(Config{Root: "s3://bucket/mirror", ExcludeArchives: []string{"vendor/"}}, store, "mirror")
	e.scratch = t.TempDir()

	var got []types.ArchiveDescriptor
	var localPaths []string
	err := e.Enumerate(context.Background(), func(desc types.ArchiveDescriptor) error {
		data, err := os.ReadFile(desc.Path)
		require.NoError(t, err)
		assert.Equal(t, store.objects["mirror/"+desc.RelPath], string(data))
		got = append(got, desc)
		localPaths = append(localPaths, desc.Path)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "a/a-1.0-py3-none-any.whl", got[0].RelPath)
	assert.Equal(t, types.KindZip, got[0].Kind)
	assert.Equal(t, "a-1.0", got[0].DistributionHint)
	assert.Equal(t, "b/b-1.0.tar.gz", got[1].RelPath)
	assert.Equal(t, int64(3), got[1].Size)

	// Downloads are removed once the callback returns.
	for _, p := range localPaths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "scratch file %s should be removed", p)
	}
	assert.Equal(t, []string{"mirror/a/a-1.0-py3-none-any.whl", "mirror/b/b-1.0.tar.gz"}, store.downloads)
}

func TestObjectEnumerator_ListError(t *testing.T) {
	e := newObjectEnumerator(Config{Root: "s3://bucket"}, &fakeObjectStore{listErr: errors.New("denied")}, "")

	err := e.Enumerate(context.Background(), func(types.ArchiveDescriptor) error { return nil })
	assert.ErrorIs(t, err, types.ErrInputNotReadable)
}

func TestObjectEnumerator_DownloadFailureStillYields(t *testing.T) {
	store := &fakeObjectStore{
		objects: map[string]string{"x.whl": "x"},
		failKey: "x.whl",
	}
	var skipped []string
	e := newObjectEnumerator(Config{Root: "s3://bucket", OnSkip: func(path string, err error) {
		skipped = append(skipped, path)
	}}, store, "")
	e.scratch = t.TempDir()

	var yielded int
	err := e.Enumerate(context.Background(), func(desc types.ArchiveDescriptor) error {
		yielded++
		_, statErr := os.Stat(desc.Path)
		assert.True(t, os.IsNotExist(statErr))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, yielded)
	assert.Equal(t, []string{"x.whl"}, skipped)
}

func TestNewObjectEnumerator_Validation(t *testing.T) {
	_, err := NewObjectEnumerator(Config{Root: "s3:///prefix"})
	assert.ErrorIs(t, err, types.ErrInputNotFound)

	_, err = NewObjectEnumerator(Config{Root: "s3://bucket/prefix"})
	assert.ErrorIs(t, err, types.ErrInputNotReadable, "missing credentials")

	_, err = NewObjectEnumerator(Config{Root: "azblob://container"})
	assert.ErrorIs(t, err, types.ErrInputNotReadable, "missing connection string")
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("s3://bucket/prefix"))
	assert.True(t, IsRemote("azblob://container"))
	assert.False(t, IsRemote("/srv/packages"))
	assert.False(t, IsRemote("packages"))
}

func TestRemoteConfigFromEnv(t *testing.T) {
	t.Setenv("SHARDEX_S3_ENDPOINT", "minio:9000")
	t.Setenv("SHARDEX_S3_ACCESS_KEY", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "fallback")
	t.Setenv("SHARDEX_S3_USE_SSL", "false")
	t.Setenv("SHARDEX_S3_REGION", "")

	cfg := RemoteConfigFromEnv()
	assert.Equal(t, "minio:9000", cfg.S3Endpoint)
	assert.Equal(t, "fallback", cfg.S3AccessKey)
	assert.False(t, cfg.S3UseSSL)
	assert.Equal(t, "us-east-1", cfg.S3Region)
}
