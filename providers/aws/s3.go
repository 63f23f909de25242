package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/lakeforge/lakeforge/pkg/provider"
)

func (p *Provider) createBucket(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	name := strAttr(req.Desired, "bucket")

	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 rejects an explicit LocationConstraint.
	if p.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.region),
		}
	}

	_, err := p.s3Client.CreateBucket(ctx, input)
	if err != nil {
		var ae smithy.APIError
		// Re-creating a bucket we already own is idempotent.
		if !errors.As(err, &ae) || ae.ErrorCode() != "BucketAlreadyOwnedByYou" {
			return nil, classify("create bucket", err)
		}
	}

	if tags := mapAttr(req.Desired, "tags"); len(tags) > 0 {
		if err := p.putBucketTags(ctx, name, tags); err != nil {
			return nil, err
		}
	}

	return &provider.Response{Attributes: map[string]any{
		"id":     name,
		"bucket": name,
		"arn":    fmt.Sprintf("arn:aws:s3:::%s", name),
		"region": p.region,
	}}, nil
}

func (p *Provider) readBucket(ctx context.Context, req *provider.ReadRequest) (*provider.Response, error) {
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(req.ID)})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && (ae.ErrorCode() == "NotFound" || ae.ErrorCode() == "NoSuchBucket") {
			return nil, provider.ErrNotFound
		}
		return nil, classify("read bucket", err)
	}
	return &provider.Response{Attributes: req.Prior}, nil
}

func (p *Provider) deleteBucket(ctx context.Context, req *provider.DeleteRequest) error {
	name := req.ID
	if name == "" {
		name = strAttr(req.Prior, "bucket")
	}

	if boolAttr(req.Prior, "force_destroy") {
		if err := p.emptyBucket(ctx, name); err != nil {
			return err
		}
	}

	_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "NoSuchBucket" {
			return nil
		}
		return classify("delete bucket", err)
	}
	return nil
}

// emptyBucket pages through and removes every object so DeleteBucket can
// succeed on non-empty buckets.
func (p *Provider) emptyBucket(ctx context.Context, name string) error {
	paginator := s3.NewListObjectsV2Paginator(p.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return classify("list objects", err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = p.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(name),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classify("delete objects", err)
		}
	}
	return nil
}

func (p *Provider) putBucketVersioning(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	bucket := strAttr(desired, "bucket")
	status := s3types.BucketVersioningStatusSuspended
	if boolAttr(desired, "enabled") {
		status = s3types.BucketVersioningStatusEnabled
	}

	_, err := p.s3Client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket:                  aws.String(bucket),
		VersioningConfiguration: &s3types.VersioningConfiguration{Status: status},
	})
	if err != nil {
		return nil, classify("put bucket versioning", err)
	}

	attrs := map[string]any{"id": bucket + "/versioning"}
	for k, v := range desired {
		attrs[k] = v
	}
	return &provider.Response{Attributes: attrs}, nil
}

func (p *Provider) putBucketLifecycle(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	bucket := strAttr(desired, "bucket")
	days := numAttr(desired, "expiration_days")

	rule := s3types.LifecycleRule{
		ID:     aws.String("expire-objects"),
		Status: s3types.ExpirationStatusEnabled,
		Expiration: &s3types.LifecycleExpiration{
			Days: aws.Int32(int32(days)),
		},
	}
	if prefix := strAttr(desired, "prefix"); prefix != "" {
		rule.Filter = &s3types.LifecycleRuleFilter{Prefix: aws.String(prefix)}
	}

	_, err := p.s3Client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket:                 aws.String(bucket),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{Rules: []s3types.LifecycleRule{rule}},
	})
	if err != nil {
		return nil, classify("put bucket lifecycle", err)
	}

	attrs := map[string]any{"id": bucket + "/lifecycle"}
	for k, v := range desired {
		attrs[k] = v
	}
	return &provider.Response{Attributes: attrs}, nil
}

func (p *Provider) putBucketTags(ctx context.Context, name string, tags map[string]any) error {
	tagSet := make([]s3types.Tag, 0, len(tags))
	for k, v := range tags {
		tagSet = append(tagSet, s3types.Tag{Key: aws.String(k), Value: aws.String(fmt.Sprintf("%v", v))})
	}
	_, err := p.s3Client.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  aws.String(name),
		Tagging: &s3types.Tagging{TagSet: tagSet},
	})
	if err != nil {
		return classify("put bucket tagging", err)
	}
	return nil
}

func mapAttr(attrs map[string]any, key string) map[string]any {
	if m, ok := attrs[key].(map[string]any); ok {
		return m
	}
	return nil
}
