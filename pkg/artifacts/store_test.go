package artifacts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/evidencehash"
)

func TestFileStorePutGet(t *testing.T) {
	ctx := context.Background()
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte(`{"digest":"sha256:abc"}`)
	h, err := st.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+evidencehash.SHA256Hex(data), h)

	again, err := st.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, h, again)

	got, err := st.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := st.Exists(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreMissingAndInvalid(t *testing.T) {
	ctx := context.Background()
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	missing := "sha256:" + evidencehash.SHA256Hex([]byte("nothing"))
	_, err = st.Get(ctx, missing)
	assert.True(t, errors.Is(err, ErrNotFound))

	ok, err := st.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.Get(ctx, "sha256:../../etc/passwd")
	assert.Error(t, err)
}

func TestNewStoreDefaultsToFilesystem(t *testing.T) {
	st, err := NewStore(context.Background(), Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := st.(*FileStore)
	assert.True(t, ok)

	_, err = NewStore(context.Background(), Config{Type: "gcs"})
	assert.Error(t, err)
}
