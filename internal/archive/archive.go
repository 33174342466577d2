// Package archive mirrors stored object files to S3 through a bounded worker
// pool. Archiving is best-effort and asynchronous: it never sits on the
// acknowledgment path of a session, and a full queue drops the job rather
// than blocking the receiver.
package archive

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/openpacs/pacsd/pkg/errors"
)

type job struct {
	path string
	key  string
}

// Uploader copies stored files to an S3 bucket.
type Uploader struct {
	s3Client *s3.Client
	bucket   string
	jobs     chan job
	wg       sync.WaitGroup
}

// NewUploader creates an uploader and starts its worker goroutines.
func NewUploader(ctx context.Context, bucket, region string, workers int) (*Uploader, error) {
	slog.Info("archive_init", "bucket", bucket, "region", region, "workers", workers)

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	u := &Uploader{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
		jobs:     make(chan job, workers*2), // small buffer for backpressure
	}

	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.worker(i)
	}

	return u, nil
}

// Enqueue schedules a stored file for upload under the given key. It reports
// false when the queue is full; the object stays on local disk either way.
func (u *Uploader) Enqueue(path, key string) bool {
	select {
	case u.jobs <- job{path: path, key: key}:
		return true
	default:
		slog.Warn("archive_queue_full", "path", path, "key", key)
		return false
	}
}

// Shutdown stops accepting jobs and drains the in-flight uploads.
func (u *Uploader) Shutdown() {
	close(u.jobs)
	u.wg.Wait()
	slog.Info("archive_drained")
}

func (u *Uploader) worker(id int) {
	defer u.wg.Done()
	for j := range u.jobs {
		if err := u.upload(j); err != nil {
			slog.Error("archive_upload_failed",
				"worker_id", id, "path", j.path, "key", j.key, "error", err)
		}
	}
}

func (u *Uploader) upload(j job) error {
	f, err := os.Open(j.path)
	if err != nil {
		return errors.Wrap(err, "failed to open stored file")
	}
	defer f.Close()

	_, err = u.s3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(j.key),
		Body:   f,
	})
	if err != nil {
		return errors.Wrap(err, "failed to put object")
	}

	slog.Info("archive_upload_complete", "key", j.key)
	return nil
}
