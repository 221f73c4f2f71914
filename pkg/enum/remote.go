package enum

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RemoteConfig holds object store connection settings.
type RemoteConfig struct {
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	AzureConnectionString string
}

// RemoteConfigFromEnv reads object store settings from the environment.
// Callers load .env files beforehand if they want them honoured.
func RemoteConfigFromEnv() RemoteConfig {
	return RemoteConfig{
		S3Endpoint:            strings.TrimSpace(os.Getenv("SHARDEX_S3_ENDPOINT")),
		S3Region:              firstNonEmpty(strings.TrimSpace(os.Getenv("SHARDEX_S3_REGION")), "us-east-1"),
		S3AccessKey:           firstNonEmpty(strings.TrimSpace(os.Getenv("SHARDEX_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))),
		S3SecretKey:           firstNonEmpty(strings.TrimSpace(os.Getenv("SHARDEX_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))),
		S3UseSSL:              parseBoolDefault(os.Getenv("SHARDEX_S3_USE_SSL"), true),
		AzureConnectionString: strings.TrimSpace(os.Getenv("AZURE_STORAGE_CONNECTION_STRING")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBoolDefault(raw string, def bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// minioStore reads archives from an S3-compatible bucket.
type minioStore struct {
	client *minio.Client
	bucket string
}

func newMinioStore(cfg RemoteConfig, bucket string) (*minioStore, error) {
	endpoint := firstNonEmpty(cfg.S3Endpoint, "s3.amazonaws.com")
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: firstNonEmpty(cfg.S3Region, "us-east-1"),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &minioStore{client: client, bucket: bucket}, nil
}

func (s *minioStore) List(ctx context.Context, prefix string) ([]objectInfo, error) {
	var out []objectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, objectInfo{Key: obj.Key, Size: obj.Size})
	}
	return out, nil
}

func (s *minioStore) Download(ctx context.Context, key, dst string) error {
	return s.client.FGetObject(ctx, s.bucket, key, dst, minio.GetObjectOptions{})
}

// azureStore reads archives from an Azure blob container.
type azureStore struct {
	client    *azblob.Client
	container string
}

func newAzureStore(cfg RemoteConfig, container string) (*azureStore, error) {
	if cfg.AzureConnectionString == "" {
		return nil, fmt.Errorf("AZURE_STORAGE_CONNECTION_STRING is required for azblob roots")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.AzureConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("init azure blob client: %w", err)
	}
	return &azureStore{client: client, container: container}, nil
}

func (s *azureStore) List(ctx context.Context, prefix string) ([]objectInfo, error) {
	var out []objectInfo
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			out = append(out, objectInfo{Key: *item.Name, Size: size})
		}
	}
	return out, nil
}

func (s *azureStore) Download(ctx context.Context, key, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.client.DownloadFile(ctx, s.container, key, f, nil)
	return err
}
