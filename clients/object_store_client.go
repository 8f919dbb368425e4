// Package clients wraps github.com/livepeer/go-tools/drivers for the bucket-backed
// origin Source type (SPEC_FULL.md §4.C): reading an asset straight out of an
// operator-configured bucket when the origin names one as a source.
package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/livepeer/go-tools/drivers"

	xerrors "github.com/livepeer/videogw/errors"
	"github.com/livepeer/videogw/log"
	"github.com/livepeer/videogw/metrics"
)

// PresignDuration is how long a signed bucket URL handed to a transform backend
// remains valid.
const PresignDuration = 1 * time.Hour

// DownloadOSURL fetches the full body at osURL (an s3://, gs:// or file:// driver URL).
func DownloadOSURL(ctx context.Context, osURL string) (io.ReadCloser, error) {
	fileInfoReader, err := GetOSURL(ctx, osURL, "")
	if err != nil {
		return nil, err
	}
	return fileInfoReader.Body, nil
}

// GetOSURL fetches osURL, optionally restricted to a byteRange in the
// "bytes=start-end" form go-tools/drivers expects.
func GetOSURL(ctx context.Context, osURL, byteRange string) (*drivers.FileInfoReader, error) {
	storageDriver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, xerrors.Unretriable(fmt.Errorf("failed to parse OS URL %q: %w", log.RedactURL(osURL), err))
	}

	start := time.Now()

	sess := storageDriver.NewSession("")
	info := sess.GetInfo()
	var host, bucket string
	if info != nil && info.S3Info != nil {
		host = info.S3Info.Host
		bucket = info.S3Info.Bucket
	}
	var fileInfoReader *drivers.FileInfoReader
	if byteRange == "" {
		fileInfoReader, err = sess.ReadData(ctx, "")
	} else {
		fileInfoReader, err = sess.ReadDataRange(ctx, "", byteRange)
	}

	if err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues(host, "read", bucket).Inc()

		if errors.Is(err, drivers.ErrNotExist) {
			return nil, xerrors.NewObjectNotFoundError("not found in bucket", err)
		}
		return nil, fmt.Errorf("failed to read from OS URL %q: %w", log.RedactURL(osURL), err)
	}

	duration := time.Since(start)
	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues(host, "read", bucket).Observe(duration.Seconds())

	return fileInfoReader, nil
}

// UploadToOSURL writes data to filename under osURL, giving up after timeout.
func UploadToOSURL(ctx context.Context, osURL, filename string, data io.Reader, timeout time.Duration) error {
	storageDriver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return fmt.Errorf("failed to parse OS URL %q: %s", log.RedactURL(osURL), err)
	}
	start := time.Now()

	var host, bucket string
	sess := storageDriver.NewSession("")
	info := sess.GetInfo()
	if info != nil && info.S3Info != nil {
		host = info.S3Info.Host
		bucket = info.S3Info.Bucket
	}

	_, err = sess.SaveData(ctx, filename, data, nil, timeout)
	if err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues(host, "write", bucket).Inc()
		return fmt.Errorf("failed to write to OS URL %q: %s", log.RedactURL(osURL+"/"+filename), err)
	}

	duration := time.Since(start)
	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues(host, "write", bucket).Observe(duration.Seconds())

	return nil
}

// ListOSURL lists the contents of a bucket-backed origin source.
func ListOSURL(ctx context.Context, osURL string) (drivers.PageInfo, error) {
	osDriver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, fmt.Errorf("unexpected error parsing internal driver URL: %w", err)
	}
	os := osDriver.NewSession("")

	page, err := os.ListFiles(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}

	return page, nil
}

// SignURL returns a presigned, publicly fetchable URL for u if it names a bucket
// driver scheme, or u unchanged if it is already an http(s) URL.
func SignURL(u *url.URL) (string, error) {
	if u.Scheme == "" || u.Scheme == "file" || u.Scheme == "http" || u.Scheme == "https" {
		return u.String(), nil
	}
	driver, err := drivers.ParseOSURL(u.String(), true)
	if err != nil {
		return "", fmt.Errorf("failed to parse OS url: %w", err)
	}

	sess := driver.NewSession("")
	signedURL, err := sess.Presign("", PresignDuration)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed url: %w", err)
	}
	return signedURL, nil
}
