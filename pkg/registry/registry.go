// Package registry uploads the final global checkpoint as an OCI artifact.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	ArtifactType        = "application/vnd.hubnspoke.model.v1"
	CheckpointMediaType = "application/vnd.hubnspoke.checkpoint.v1+cbor"
	annotationModelID   = "org.hubnspoke.model.id"
	annotationRound     = "org.hubnspoke.model.round"
	defTag              = "latest"
)

var ErrEmptyCheckpoint = errors.New("empty checkpoint")

type Config struct {
	Reference string `env:"REFERENCE"  envDefault:""`
	Tag       string `env:"TAG"        envDefault:"latest"`
	PlainHTTP bool   `env:"PLAIN_HTTP" envDefault:"false"`
	Username  string `env:"USERNAME"   envDefault:""`
	Password  string `env:"PASSWORD"   envDefault:""`
	Token     string `env:"PAT"        envDefault:""`
}

// Artifact is what gets uploaded.
type Artifact struct {
	ModelID    string
	Round      int
	Checkpoint []byte
}

type Uploader struct {
	target oras.Target
	tag    string
}

// NewUploader pushes to any oras target, such as a local OCI layout or a
// remote repository.
func NewUploader(target oras.Target, tag string) *Uploader {
	if tag == "" {
		tag = defTag
	}

	return &Uploader{target: target, tag: tag}
}

// NewRemoteUploader pushes to the repository named by cfg.Reference.
func NewRemoteUploader(cfg Config) (*Uploader, error) {
	repo, err := remote.NewRepository(cfg.Reference)
	if err != nil {
		return nil, fmt.Errorf("invalid repository reference %q: %w", cfg.Reference, err)
	}
	repo.PlainHTTP = cfg.PlainHTTP

	if cfg.Username != "" || cfg.Token != "" {
		cred := auth.Credential{
			Username:    cfg.Username,
			Password:    cfg.Password,
			AccessToken: cfg.Token,
		}
		repo.Client = &auth.Client{
			Client:     retry.DefaultClient,
			Cache:      auth.NewCache(),
			Credential: auth.StaticCredential(repo.Reference.Registry, cred),
		}
	}

	return NewUploader(repo, cfg.Tag), nil
}

// Upload packs the checkpoint as a single-layer artifact, tags it and copies
// it to the target. It returns the manifest descriptor.
func (u *Uploader) Upload(ctx context.Context, a Artifact) (ocispec.Descriptor, error) {
	if len(a.Checkpoint) == 0 {
		return ocispec.Descriptor{}, ErrEmptyCheckpoint
	}

	store := memory.New()
	layer := content.NewDescriptorFromBytes(CheckpointMediaType, a.Checkpoint)
	layer.Annotations = map[string]string{
		ocispec.AnnotationTitle: a.ModelID + ".ckpt",
	}
	if err := store.Push(ctx, layer, bytes.NewReader(a.Checkpoint)); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to stage checkpoint layer: %w", err)
	}

	manifest, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
		ManifestAnnotations: map[string]string{
			annotationModelID: a.ModelID,
			annotationRound:   fmt.Sprintf("%d", a.Round),
		},
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to pack manifest: %w", err)
	}
	if err := store.Tag(ctx, manifest, u.tag); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to tag manifest: %w", err)
	}

	desc, err := oras.Copy(ctx, store, u.tag, u.target, u.tag, oras.DefaultCopyOptions)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to push artifact: %w", err)
	}

	return desc, nil
}
