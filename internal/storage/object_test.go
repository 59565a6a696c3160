package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts++
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(f.types[key]),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("resumes/1/cv.pdf"))
	assert.ErrorIs(t, ValidatePath(""), ErrInvalidPath)
	assert.ErrorIs(t, ValidatePath("   "), ErrInvalidPath)
	assert.ErrorIs(t, ValidatePath("resumes/1/"), ErrInvalidPath)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "resumes/abc/cv.pdf", ObjectName("resumes", "abc", "cv.pdf"))
	assert.Equal(t, "resumes/abc/cv.pdf", ObjectName("resumes", "abc", "../../cv.pdf"))
	assert.Equal(t, "resumes/abc/cv.docx", ObjectName("resumes", "abc", `C:\Users\me\cv.docx`))
	assert.Equal(t, "images/abc/file", ObjectName("images", "abc", ""))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeFor("CV.PDF"))
	assert.Equal(t, "image/png", ContentTypeFor("preview.png"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("archive.zip"))
}

func TestS3UploadAndOpen(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := &S3{client: fake, bucket: "resumind"}

	path, err := store.Upload(ctx, "resumes/1/cv.pdf", bytes.NewReader([]byte("%PDF-1.4")), 8, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "resumes/1/cv.pdf", path)

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	rc, info, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.False(t, info.LastModified.IsZero())
}

func TestS3RejectsInvalidPathWithoutCallingBackend(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := &S3{client: fake, bucket: "resumind"}

	_, err := store.Upload(ctx, "resumes/1/", bytes.NewReader(nil), 0, "application/pdf")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, 0, fake.puts)

	_, err = store.Read(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestS3MissingObject(t *testing.T) {
	store := &S3{client: newFakeS3(), bucket: "resumind"}
	_, err := store.Read(context.Background(), "resumes/none/cv.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
