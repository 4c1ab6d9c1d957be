package blobsvc

import (
	"bytes"
	"context"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

const defaultRegion = "us-east-1"

var errBucketRequired = errors.New("s3 bucket required")

// Export is an archived export file.
type Export struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// S3Archiver keeps grade exports in a single S3 (or S3 compatible) bucket, under an optional prefix.
type S3Archiver struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

var _ gradebook.ExportArchiver = (*S3Archiver)(nil)

type s3Options struct {
	httpClient  *http.Client
	credentials aws.CredentialsProvider
}

type S3Option func(*s3Options)

// WithHTTPClient replaces the transport used to reach S3.
func WithHTTPClient(client *http.Client) S3Option {
	return func(o *s3Options) { o.httpClient = client }
}

func WithStaticCredentials(key, secret, session string) S3Option {
	return func(o *s3Options) { o.credentials = credentials.NewStaticCredentialsProvider(key, secret, session) }
}

// NewS3Archiver builds the archiver from the blob config.
// Credentials come from the default AWS chain unless given.
func NewS3Archiver(ctx context.Context, conf core.BlobConfig, opts ...S3Option) (*S3Archiver, error) {
	if conf.Bucket == "" {
		return nil, errBucketRequired
	}
	var o s3Options
	for _, opt := range opts {
		opt(&o)
	}

	region := conf.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if o.credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(o.credentials))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		so.UsePathStyle = conf.PathStyle
		if conf.Endpoint != "" {
			so.BaseEndpoint = aws.String(conf.Endpoint)
		}
		if o.httpClient != nil {
			so.HTTPClient = o.httpClient
		}
	})
	return &S3Archiver{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  conf.Bucket,
		prefix:  strings.Trim(conf.Prefix, "/"),
	}, nil
}

func (a *S3Archiver) objectKey(key string) string {
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}

// Archive uploads content and returns its s3:// location.
func (a *S3Archiver) Archive(ctx context.Context, key, contentType string, content []byte) (string, error) {
	objKey := a.objectKey(key)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(objKey),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", errors.Wrapf(err, "putting %s", objKey)
	}
	return "s3://" + a.bucket + "/" + objKey, nil
}

// List returns the exports of the owner, oldest first.
func (a *S3Archiver) List(ctx context.Context, ownerID string) ([]Export, error) {
	prefix := a.objectKey(ownerID) + "/"
	exports := []Export{}
	var token *string
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", prefix)
		}
		for _, obj := range out.Contents {
			exports = append(exports, Export{
				Key:          strings.TrimPrefix(aws.ToString(obj.Key), a.objectKey("")+"/"),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Key < exports[j].Key })
	return exports, nil
}

// DownloadURL presigns a GET of the export for expiry.
func (a *S3Archiver) DownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(key)),
	}, func(po *s3.PresignOptions) { po.Expires = expiry })
	if err != nil {
		return "", errors.Wrapf(err, "presigning %s", key)
	}
	return req.URL, nil
}
