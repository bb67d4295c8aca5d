package media

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
)

// ObjectStore is the subset of the store client the direct fetcher needs.
// The interface allows for mocking in tests.
type ObjectStore interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// StoreFetcher reads objects straight from the content store. It is used
// when the client runs with store credentials and the backend mirror is
// unnecessary.
type StoreFetcher struct {
	store ObjectStore
}

// NewStoreFetcher returns a fetcher over an existing store client.
func NewStoreFetcher(store ObjectStore) *StoreFetcher {
	return &StoreFetcher{store: store}
}

// NewStoreFetcherFromEnv builds a store client from the ambient credential
// chain and wraps it in a fetcher.
func NewStoreFetcherFromEnv(ctx context.Context) (*StoreFetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, apierrors.New("storeFetcher", apierrors.ClassAccessDenied, err).
			WithMessage("failed to load store credentials")
	}
	return &StoreFetcher{store: s3.NewFromConfig(cfg)}, nil
}

// Fetch downloads the referenced object and returns its bytes.
func (f *StoreFetcher) Fetch(ctx context.Context, ref Reference) (*FetchResult, error) {
	const op = "storeFetch"

	out, err := f.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, classifyStoreError(op, ref, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apierrors.New(op, apierrors.ClassNetwork, err).WithDetail(ref.String())
	}
	return &FetchResult{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

func classifyStoreError(op string, ref Reference, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "NoSuchBucket"):
		return apierrors.New(op, apierrors.ClassNotFound, err).WithDetail(ref.String())
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "Forbidden"):
		return apierrors.New(op, apierrors.ClassAccessDenied, err).WithDetail(ref.String())
	default:
		return apierrors.FromTransport(op, err)
	}
}
