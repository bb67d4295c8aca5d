package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
)

// mockObjectStore lets tests script store responses.
type mockObjectStore struct {
	getObjectFunc func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func (m *mockObjectStore) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	return m.getObjectFunc(ctx, params, optFns...)
}

func TestStoreFetcher_Fetch(t *testing.T) {
	payload := []byte("generated ad image bytes")
	store := &mockObjectStore{
		getObjectFunc: func(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "campaign-assets", aws.ToString(params.Bucket))
			assert.Equal(t, "generated/ad_1.png", aws.ToString(params.Key))
			return &s3.GetObjectOutput{
				Body:        io.NopCloser(bytes.NewReader(payload)),
				ContentType: aws.String("image/png"),
			}, nil
		},
	}

	ref, err := ParseReference("s3://campaign-assets/generated/ad_1.png")
	require.NoError(t, err)

	result, err := NewStoreFetcher(store).Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, payload, result.Data)
	assert.Equal(t, "image/png", result.ContentType)
	assert.Empty(t, result.URL)
}

func TestStoreFetcher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass apierrors.Class
	}{
		{
			name:      "missing key",
			err:       errors.New("NoSuchKey: The specified key does not exist"),
			wantClass: apierrors.ClassNotFound,
		},
		{
			name:      "missing bucket",
			err:       errors.New("NoSuchBucket: The specified bucket does not exist"),
			wantClass: apierrors.ClassNotFound,
		},
		{
			name:      "denied",
			err:       errors.New("AccessDenied: Access Denied"),
			wantClass: apierrors.ClassAccessDenied,
		},
		{
			name:      "timeout",
			err:       errors.New("RequestError: context deadline exceeded"),
			wantClass: apierrors.ClassTimeout,
		},
		{
			name:      "other transport failure",
			err:       errors.New("connection reset by peer"),
			wantClass: apierrors.ClassNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockObjectStore{
				getObjectFunc: func(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return nil, tt.err
				},
			}
			ref, err := ParseReference("s3://campaign-assets/ad.png")
			require.NoError(t, err)

			_, err = NewStoreFetcher(store).Fetch(context.Background(), ref)
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, apierrors.ClassOf(err))
		})
	}
}
