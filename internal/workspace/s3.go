package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"floodfactor/internal/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps artifacts at s3://bucket/<prefix>/<runID>/<name>.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(runID, name string) string {
	return path.Join(s.prefix, runID, name)
}

func (s *S3Store) PutFile(ctx context.Context, runID, name, filePath string) error {
	if err := types.ValidateArtifactName(name); err != nil {
		return err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to open artifact %s", name), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to stat artifact %s", name), err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(runID, name)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentType(name)),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to upload artifact %s", name), err)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, runID, name string) (io.ReadCloser, error) {
	if err := types.ValidateArtifactName(name); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(runID, name)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, artifactNotFound(runID, name, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to fetch artifact %s", name), err)
	}
	return out.Body, nil
}
