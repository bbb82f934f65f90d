package artifacts

import (
	"context"
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"lv-onboarding/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	payload := []byte("%PDF-1.4 fake")
	encoded := base64.StdEncoding.EncodeToString(payload)

	t.Run("plain base64", func(t *testing.T) {
		f, err := Upload{FileName: "passport.pdf", MimeType: "application/pdf", Data: encoded}.Decode()
		require.NoError(t, err)
		assert.Equal(t, payload, f.Data)
		assert.Equal(t, "application/pdf", f.MimeType)
	})

	t.Run("data url", func(t *testing.T) {
		f, err := Upload{FileName: "a.png", MimeType: "IMAGE/PNG", Data: "data:image/png;base64," + encoded}.Decode()
		require.NoError(t, err)
		assert.Equal(t, payload, f.Data)
		assert.Equal(t, "image/png", f.MimeType)
	})

	cases := map[string]Upload{
		"missing name":  {MimeType: "image/png", Data: encoded},
		"bad mime":      {FileName: "a.gif", MimeType: "image/gif", Data: encoded},
		"empty data":    {FileName: "a.png", MimeType: "image/png"},
		"bad encoding":  {FileName: "a.png", MimeType: "image/png", Data: "!!!"},
		"decodes empty": {FileName: "a.png", MimeType: "image/png", Data: "data:image/png;base64,"},
	}
	for name, up := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := up.Decode()
			assert.Error(t, err)
		})
	}
}

func TestDecodeTooLarge(t *testing.T) {
	big := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", MaxBytes+1)))
	_, err := Upload{FileName: "a.pdf", MimeType: "application/pdf", Data: big}.Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	id := uuid.NewString()
	ref, err := store.Store(context.Background(), id, types.ArtifactSelfie, File{Name: "me.jpg", MimeType: "image/jpeg", Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, id+"/selfie-"))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	data, err := store.Open(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestDiskStoreDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id := uuid.NewString()
	ref, err := store.Store(ctx, id, types.ArtifactSignature, File{MimeType: "image/png", Data: []byte{1}})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Open(ref)
	assert.True(t, os.IsNotExist(err), "got %v", err)

	assert.NoError(t, store.Delete(ctx, uuid.NewString()), "nothing stored")
	assert.Error(t, store.Delete(ctx, ".."))
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Store(context.Background(), "../etc", types.ArtifactDocument, File{MimeType: "image/png", Data: []byte{1}})
	assert.Error(t, err)
	_, err = store.Open("../../etc/passwd")
	assert.Error(t, err)
}
