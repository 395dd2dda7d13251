package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	gets []string
	err  error
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := aws.ToString(input.Key)
	f.gets = append(f.gets, key)
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example.com/" + key + "?sig=abc"}, nil
}

type fakePlatform struct {
	calls []string
	err   error
}

func (f *fakePlatform) GetFileURL(ctx context.Context, fileID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, fileID)
	return "https://api.telegram.org/file/bot123/photos/" + fileID, nil
}

func TestPresignGet(t *testing.T) {
	presigner := &fakePresigner{}
	store := NewStoreWithPresigner(presigner, "photos")

	url, err := store.PresignGet(context.Background(), "user-1/meal.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/user-1/meal.jpg?sig=abc", url)
	assert.Equal(t, []string{"user-1/meal.jpg"}, presigner.gets)
}

func TestResolvePhotoURL_BucketKey(t *testing.T) {
	presigner := &fakePresigner{}
	platform := &fakePlatform{}
	r := NewResolver(NewStoreWithPresigner(presigner, "photos"), platform)

	url, err := r.ResolvePhotoURL(context.Background(), "s3:user-1/meal.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "bucket.example.com")
	assert.Empty(t, platform.calls)
}

func TestResolvePhotoURL_PlatformFileID(t *testing.T) {
	presigner := &fakePresigner{}
	platform := &fakePlatform{}
	r := NewResolver(NewStoreWithPresigner(presigner, "photos"), platform)

	url, err := r.ResolvePhotoURL(context.Background(), "AgACAgIAAxkBAAIC")
	require.NoError(t, err)
	assert.Contains(t, url, "api.telegram.org")
	assert.Empty(t, presigner.gets)
}

func TestResolvePhotoURL_BucketKeyWithoutStore(t *testing.T) {
	r := NewResolver(nil, &fakePlatform{})
	_, err := r.ResolvePhotoURL(context.Background(), "s3:orphan.jpg")
	assert.Error(t, err)
}

func TestResolvePhotoURL_ErrorsPropagate(t *testing.T) {
	presignErr := errors.New("presign down")
	r := NewResolver(NewStoreWithPresigner(&fakePresigner{err: presignErr}, "photos"), &fakePlatform{})
	_, err := r.ResolvePhotoURL(context.Background(), "s3:key.jpg")
	assert.ErrorIs(t, err, presignErr)

	platformErr := errors.New("telegram down")
	r = NewResolver(nil, &fakePlatform{err: platformErr})
	_, err = r.ResolvePhotoURL(context.Background(), "file-id")
	assert.ErrorIs(t, err, platformErr)
}
