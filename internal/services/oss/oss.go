// Package oss stores audio in an Alibaba Cloud OSS bucket and hands out
// signed URLs the transcription service can fetch.
package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	alioss "github.com/aliyun/aliyun-oss-go-sdk/oss"

	"prdforge/internal/logging"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun"
)

const (
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "oss-cn-shanghai"

	defaultContentType = "audio/wav"
	defaultExpires     = 3600
)

// Bucket is the subset of the OSS bucket API the gateway uses.
type Bucket interface {
	PutObject(objectKey string, reader io.Reader, options ...alioss.Option) error
	SignURL(objectKey string, method alioss.HTTPMethod, expiredInSec int64, options ...alioss.Option) (string, error)
	DeleteObject(objectKey string, options ...alioss.Option) error
}

// Config describes the bucket.
type Config struct {
	Region           string
	Bucket           string
	Endpoint         string
	Credentials      aliyun.Credentials
	SignedURLExpires int
}

// Gateway uploads, signs, and deletes objects.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	once    sync.Once
	bucket  Bucket
	initErr error
}

// Option customizes the gateway.
type Option func(*Gateway)

// WithBucket injects a bucket implementation (primarily for tests).
func WithBucket(b Bucket) Option {
	return func(g *Gateway) {
		if b != nil {
			g.bucket = b
			g.once.Do(func() {})
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New constructs a gateway. The SDK client is created on first use so
// missing credentials only fail the calls that need storage.
func New(cfg Config, opts ...Option) *Gateway {
	cfg.Region = strings.TrimSpace(cfg.Region)
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s.aliyuncs.com", cfg.Region)
	}
	if cfg.SignedURLExpires <= 0 {
		cfg.SignedURLExpires = defaultExpires
	}
	g := &Gateway{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "oss")
	return g
}

// Configured reports whether credentials and a bucket are present.
func (g *Gateway) Configured() bool {
	return g.bucket != nil || (g.cfg.Credentials.Valid() && g.cfg.Bucket != "")
}

func (g *Gateway) init() error {
	g.once.Do(func() {
		if !g.cfg.Credentials.Valid() || g.cfg.Bucket == "" {
			g.initErr = services.Wrap(services.ErrConfiguration, "oss", "init",
				"incomplete OSS configuration (ALIYUN_ACCESS_KEY_ID, ALIYUN_ACCESS_KEY_SECRET, ALIYUN_OSS_BUCKET)", nil)
			return
		}
		client, err := alioss.New(g.cfg.Endpoint, g.cfg.Credentials.AccessKeyID, g.cfg.Credentials.AccessKeySecret)
		if err != nil {
			g.initErr = services.Wrap(services.ErrConfiguration, "oss", "init", "create client", err)
			return
		}
		bucket, err := client.Bucket(g.cfg.Bucket)
		if err != nil {
			g.initErr = services.Wrap(services.ErrConfiguration, "oss", "init", "open bucket", err)
			return
		}
		g.bucket = bucket
	})
	return g.initErr
}

// UploadOptions tunes Upload. A nil SignedURL means true.
type UploadOptions struct {
	ContentType string
	SignedURL   *bool
	Expires     int
}

// UploadResult identifies the stored object.
type UploadResult struct {
	URL        string `json:"url"`
	ObjectName string `json:"objectName"`
}

// Upload stores data under objectName and returns a fetchable URL.
func (g *Gateway) Upload(ctx context.Context, data io.Reader, objectName string, opts UploadOptions) (UploadResult, error) {
	if err := g.init(); err != nil {
		return UploadResult{}, err
	}
	objectName = strings.TrimLeft(strings.TrimSpace(objectName), "/")
	if objectName == "" {
		return UploadResult{}, services.Wrap(services.ErrValidation, "oss", "upload", "object name required", nil)
	}
	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	if err := g.bucket.PutObject(objectName, data, alioss.ContentType(contentType), alioss.WithContext(ctx)); err != nil {
		return UploadResult{}, classify("upload", err)
	}

	result := UploadResult{ObjectName: objectName}
	if opts.SignedURL == nil || *opts.SignedURL {
		expires := opts.Expires
		if expires <= 0 {
			expires = g.cfg.SignedURLExpires
		}
		url, err := g.SignURL(objectName, expires)
		if err != nil {
			return UploadResult{}, err
		}
		result.URL = url
	} else {
		result.URL = g.PublicURL(objectName)
	}
	g.logger.Debug("object uploaded",
		logging.String("object", objectName),
		logging.String("content_type", contentType),
	)
	return result, nil
}

// PublicURL returns the unsigned virtual-hosted URL for objectName.
func (g *Gateway) PublicURL(objectName string) string {
	return fmt.Sprintf("https://%s.%s.aliyuncs.com/%s", g.cfg.Bucket, g.cfg.Region, objectName)
}

// SignURL returns a GET URL valid for expires seconds.
func (g *Gateway) SignURL(objectName string, expires int) (string, error) {
	if err := g.init(); err != nil {
		return "", err
	}
	if expires <= 0 {
		expires = g.cfg.SignedURLExpires
	}
	url, err := g.bucket.SignURL(objectName, alioss.HTTPGet, int64(expires))
	if err != nil {
		return "", classify("sign", err)
	}
	return url, nil
}

// Delete removes objectName. A missing object counts as deleted.
func (g *Gateway) Delete(ctx context.Context, objectName string) error {
	if err := g.init(); err != nil {
		return err
	}
	if err := g.bucket.DeleteObject(objectName, alioss.WithContext(ctx)); err != nil {
		if notFound(err) {
			return nil
		}
		return classify("delete", err)
	}
	return nil
}

func notFound(err error) bool {
	var svc alioss.ServiceError
	if errors.As(err, &svc) {
		return svc.Code == "NoSuchKey" || svc.StatusCode == http.StatusNotFound
	}
	return false
}

func classify(op string, err error) error {
	var svc alioss.ServiceError
	if errors.As(err, &svc) {
		return &services.UpstreamError{
			Provider:   "aliyun-oss",
			StatusCode: svc.StatusCode,
			Code:       svc.Code,
			Message:    svc.Message,
		}
	}
	return services.Wrap(services.ErrTransient, "oss", op, "request failed", err)
}

// ContentTypeFor maps a file extension to an audio MIME type.
func ContentTypeFor(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "m4a":
		return "audio/mp4"
	case "webm":
		return "audio/webm"
	default:
		return defaultContentType
	}
}

func scope(projectID string) string {
	if p := strings.TrimSpace(projectID); p != "" {
		return path.Clean(strings.ReplaceAll(p, "/", "_"))
	}
	return "temp"
}

func extension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "wav"
	}
	return ext
}

// SegmentObjectName names the object for a zero-based segment index.
func SegmentObjectName(projectID string, index int, ts int64, ext string) string {
	return fmt.Sprintf("%s/segment_%d_%d.%s", scope(projectID), index+1, ts, extension(ext))
}

// UploadObjectName names the object for a whole-file upload.
func UploadObjectName(projectID string, ts int64, ext string) string {
	return fmt.Sprintf("audio/%s/%d.%s", scope(projectID), ts, extension(ext))
}
