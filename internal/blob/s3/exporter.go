package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/marketfuse/internal/domain"
)

// multipartThreshold is the payload size above which exports go through the
// multipart upload manager instead of a single PutObject.
const multipartThreshold = 8 << 20

// Exporter writes gzip-compressed JSON exports of the unified view. Object
// keys are time-partitioned: <prefix>YYYY/MM/DD/unified-HHMMSS.json.gz.
type Exporter struct {
	client *Client
	prefix string
	logger *slog.Logger
}

var _ domain.SnapshotExporter = (*Exporter)(nil)

// NewExporter creates an Exporter writing under the given key prefix.
func NewExporter(client *Client, prefix string, logger *slog.Logger) *Exporter {
	return &Exporter{
		client: client,
		prefix: prefix,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// Export serializes the unified markets and uploads them as one object.
func (e *Exporter) Export(ctx context.Context, markets []domain.UnifiedMarket, at time.Time) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(markets); err != nil {
		return fmt.Errorf("s3blob: encode export: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("s3blob: compress export: %w", err)
	}

	key := e.objectKey(at)
	input := &s3.PutObjectInput{
		Bucket:          aws.String(e.client.Bucket()),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	}

	if buf.Len() > multipartThreshold {
		uploader := manager.NewUploader(e.client.S3())
		if _, err := uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
	} else {
		if _, err := e.client.S3().PutObject(ctx, input); err != nil {
			return fmt.Errorf("s3blob: put %s: %w", key, err)
		}
	}

	e.logger.Info("snapshot exported",
		slog.String("key", key),
		slog.Int("markets", len(markets)),
		slog.Int("bytes", buf.Len()))
	return nil
}

func (e *Exporter) objectKey(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s%s/unified-%s.json.gz",
		e.prefix, at.Format("2006/01/02"), at.Format("150405"))
}
