package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects a Store implementation using environment variables.
//
//	COEHUB_BLOB_DRIVER: memory|fs|s3 (default fs)
//	COEHUB_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	COEHUB_BLOB_S3_BUCKET: bucket name, required when driver=s3
//	COEHUB_BLOB_S3_REGION: region (default us-east-1)
//	COEHUB_BLOB_S3_ENDPOINT: custom endpoint for MinIO, optional
//	COEHUB_BLOB_S3_PATH_STYLE: true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN: optional
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("COEHUB_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("COEHUB_BLOB_FS_ROOT"))
	case DriverS3:
		bucket := os.Getenv("COEHUB_BLOB_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("COEHUB_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv("COEHUB_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("COEHUB_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("COEHUB_BLOB_S3_PATH_STYLE"), "true"),
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
