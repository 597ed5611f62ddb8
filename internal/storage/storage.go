package storage

import (
	"context"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store/model"
	"go.uber.org/zap"
)

// Uploader persists a blob under a key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	BaseURL() string
}

// Resolver re-hosts provider asset URLs according to a channel's
// storage mode. Forward mode passes URLs through untouched; oss and
// local modes download the asset and serve it from our own storage.
type Resolver struct {
	oss    Uploader
	local  Uploader
	client *httpclient.Client
}

func NewResolver(cfg config.StorageConfig, client *httpclient.Client) *Resolver {
	r := &Resolver{
		local:  NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL),
		client: client,
	}
	if ossConfigured(cfg.OSS) {
		r.oss = NewOSSUploader(cfg.OSS)
	}
	return r
}

func ossConfigured(cfg config.OSSConfig) bool {
	return cfg.Bucket != "" && cfg.AccessKeyID != "" && cfg.AccessKeySecret != ""
}

// Resolve returns the URL a client should receive for srcURL under the
// given storage type. Re-hosting failures fall back to the original
// URL rather than failing the request.
func (r *Resolver) Resolve(ctx context.Context, storageType, srcURL string) string {
	if srcURL == "" || storageType == model.StorageTypeForward {
		return srcURL
	}

	// Already ours; nothing to do
	if r.hosted(srcURL) {
		return srcURL
	}

	uploader := r.pick(storageType)

	data, contentType, err := r.client.Download(ctx, srcURL, nil)
	if err != nil {
		logger.Warn("Asset download failed, keeping original URL",
			zap.String("url", srcURL),
			zap.Error(err),
		)
		return srcURL
	}

	key := objectKey(srcURL, contentType)
	hosted, err := uploader.Upload(ctx, key, data, contentType)
	if err != nil {
		logger.Warn("Asset upload failed, keeping original URL",
			zap.String("url", srcURL),
			zap.Error(err),
		)
		return srcURL
	}
	return hosted
}

// pick chooses the uploader for a storage type. An unconfigured oss
// backend silently degrades to local storage.
func (r *Resolver) pick(storageType string) Uploader {
	if storageType == model.StorageTypeOSS && r.oss != nil {
		return r.oss
	}
	return r.local
}

func (r *Resolver) hosted(srcURL string) bool {
	if r.oss != nil && r.oss.BaseURL() != "" && strings.HasPrefix(srcURL, r.oss.BaseURL()) {
		return true
	}
	return r.local.BaseURL() != "" && strings.HasPrefix(srcURL, r.local.BaseURL())
}

// objectKey builds a collision-free name, keeping the source extension
// when one exists.
func objectKey(srcURL, contentType string) string {
	ext := ""
	if u, err := url.Parse(srcURL); err == nil {
		ext = path.Ext(u.Path)
	}
	if ext == "" && contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return uuid.NewString() + ext
}
