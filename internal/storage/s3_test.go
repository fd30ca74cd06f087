package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fileforge/fileforge/internal/storage"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func newTestStore(t *testing.T, client *MockS3Client) *storage.S3Store {
	t.Helper()
	store, err := storage.NewS3Store(context.Background(), storage.S3Config{
		Bucket: "test-bucket",
		Region: "us-east-1",
	}, storage.WithS3Client(client))
	require.NoError(t, err)
	return store
}

func keyIs(key string) func(*string) bool {
	return func(k *string) bool { return k != nil && *k == key }
}

func TestNewS3Store_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := storage.NewS3Store(context.Background(), storage.S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)

	_, err = storage.NewS3Store(context.Background(), storage.S3Config{Bucket: "b"})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}

func TestS3Store_Download(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(p *s3.GetObjectInput) bool {
			return *p.Bucket == "test-bucket" && keyIs("acc-1/uploads/a.png")(p.Key)
		}), mock.Anything).Return(&s3.GetObjectOutput{
			Body:        io.NopCloser(strings.NewReader("payload")),
			ContentType: aws.String("image/png"),
		}, nil)

		blob, err := newTestStore(t, client).Download(context.Background(), "acc-1/uploads/a.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), blob.Data)
		assert.Equal(t, "image/png", blob.ContentType)
		client.AssertExpectations(t)
	})

	t.Run("no such key", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.NoSuchKey{Message: aws.String("missing")})

		_, err := newTestStore(t, client).Download(context.Background(), "acc-1/uploads/a.png")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("invalid path", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)

		_, err := newTestStore(t, client).Download(context.Background(), "../etc/passwd")
		assert.ErrorIs(t, err, storage.ErrInvalidPath)
		client.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestS3Store_Upload(t *testing.T) {
	t.Parallel()

	client := new(MockS3Client)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(p *s3.PutObjectInput) bool {
		return keyIs("acc-2/uploads/a.png")(p.Key) &&
			aws.ToString(p.ContentType) == "image/png" &&
			aws.ToInt64(p.ContentLength) == 3
	}), mock.Anything).Return(&s3.PutObjectOutput{}, nil)

	err := newTestStore(t, client).Upload(context.Background(), "acc-2/uploads/a.png", &storage.Blob{
		Data:        []byte("abc"),
		ContentType: "image/png",
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestS3Store_Delete(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("DeleteObject", mock.Anything, mock.Anything, mock.Anything).
			Return(&s3.DeleteObjectOutput{}, nil)

		assert.NoError(t, newTestStore(t, client).Delete(context.Background(), "acc-1/a.png"))
		client.AssertExpectations(t)
	})

	t.Run("missing is not an error", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("DeleteObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"})

		assert.NoError(t, newTestStore(t, client).Delete(context.Background(), "acc-1/a.png"))
	})

	t.Run("access denied", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("DeleteObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"})

		err := newTestStore(t, client).Delete(context.Background(), "acc-1/a.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AccessDenied")
	})
}

func TestS3Store_Exists(t *testing.T) {
	t.Parallel()

	client := new(MockS3Client)
	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(p *s3.HeadObjectInput) bool {
		return keyIs("present")(p.Key)
	}), mock.Anything).Return(&s3.HeadObjectOutput{}, nil)
	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(p *s3.HeadObjectInput) bool {
		return keyIs("absent")(p.Key)
	}), mock.Anything).Return(nil, &types.NotFound{})

	store := newTestStore(t, client)

	ok, err := store.Exists(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, err := store.Download(ctx, "a/b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Upload(ctx, "a/b", &storage.Blob{Data: []byte("one")}))
	require.NoError(t, store.Upload(ctx, "a/b", &storage.Blob{Data: []byte("two")}))

	blob, err := store.Download(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "two", string(blob.Data))

	ok, err := store.Exists(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "a/b"))
	require.NoError(t, store.Delete(ctx, "a/b"))
	assert.Equal(t, 0, store.Len())

	assert.ErrorIs(t, store.Upload(ctx, "/abs", &storage.Blob{}), storage.ErrInvalidPath)
}
