package registry_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/absmach/hubnspoke/pkg/registry"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
)

func TestUpload(t *testing.T) {
	ctx := context.Background()
	target := memory.New()
	uploader := registry.NewUploader(target, "v3")

	data := []byte("checkpoint bytes")
	desc, err := uploader.Upload(ctx, registry.Artifact{ModelID: "monai-test", Round: 3, Checkpoint: data})
	require.NoError(t, err)

	resolved, err := target.Resolve(ctx, "v3")
	require.NoError(t, err)
	assert.Equal(t, desc.Digest, resolved.Digest)

	rc, err := target.Fetch(ctx, resolved)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	var manifest ocispec.Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, registry.ArtifactType, manifest.ArtifactType)
	assert.Equal(t, "monai-test", manifest.Annotations["org.hubnspoke.model.id"])
	assert.Equal(t, "3", manifest.Annotations["org.hubnspoke.model.round"])
	require.Len(t, manifest.Layers, 1)
	assert.Equal(t, registry.CheckpointMediaType, manifest.Layers[0].MediaType)

	layer, err := content.FetchAll(ctx, target, manifest.Layers[0])
	require.NoError(t, err)
	assert.Equal(t, data, layer)
}

func TestUploadEmpty(t *testing.T) {
	uploader := registry.NewUploader(memory.New(), "")

	_, err := uploader.Upload(context.Background(), registry.Artifact{ModelID: "m"})
	assert.ErrorIs(t, err, registry.ErrEmptyCheckpoint)
}

func TestNewRemoteUploaderRejectsBadReference(t *testing.T) {
	_, err := registry.NewRemoteUploader(registry.Config{Reference: "not a reference"})
	assert.Error(t, err)

	_, err = registry.NewRemoteUploader(registry.Config{Reference: "localhost:5000/fl/model", PlainHTTP: true, Username: "u", Password: "p"})
	assert.NoError(t, err)
}
