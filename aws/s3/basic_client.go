package s3

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// NewBasicClient creates a client for bucket in region, rooted at prefix.
// A non-empty endpoint targets an S3 compatible service such as MinIO using path style addressing.
func NewBasicClient(bucket, region, prefix, endpoint string) (BasicClient, error) {
	awsConfig := aws.NewConfig()
	awsConfig.Region = aws.String(region)
	if endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	return NewBasicClientWithAPI(bucket, region, prefix, s3.New(sess)), nil
}

// NewBasicClientWithAPI wraps an existing S3 API implementation.
func NewBasicClientWithAPI(bucket, region, prefix string, api s3iface.S3API) BasicClient {
	return &basicClient{
		bucket: bucket,
		region: region,
		prefix: strings.Trim(prefix, "/"),
		api:    api,
	}
}

type basicClient struct {
	region string
	bucket string
	prefix string
	api    s3iface.S3API
}

func (s *basicClient) List(ctx context.Context, key string) (keys []string, err error) {
	keys = make([]string, 0, 1000)
	lastKey := ""
	for {
		params := &s3.ListObjectsInput{
			Bucket:  aws.String(s.bucket),
			Marker:  aws.String(lastKey),
			MaxKeys: aws.Int64(1000),
			Prefix:  aws.String(s.getKeyWithPrefix(key)),
		}
		resp, err := s.api.ListObjectsWithContext(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, v := range resp.Contents {
			lastKey = aws.StringValue(v.Key)
			if strings.HasSuffix(lastKey, "/") { // skip folder placeholders.
				continue
			}
			keys = append(keys, s.trimPrefix(lastKey))
		}
		if !aws.BoolValue(resp.IsTruncated) {
			break
		}
	}
	return
}

func (s *basicClient) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

func (s *basicClient) getKeyWithPrefix(key string) string {
	if s.prefix != "" {
		return s.prefix + "/" + strings.TrimLeft(key, "/") // ensure trailing slash after prefix.
	}
	return key
}

func (s *basicClient) trimPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}
