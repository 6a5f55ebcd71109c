package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Outpost/internal/domain"
)

func TestPath(t *testing.T) {
	p, err := Path(domain.TaskKey{WorkflowID: "etl", StepID: "load", RunID: "run42", Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, "workflow_id=etl/run_id=run42/step_id=load/attempt=1.log", p)
}

func TestPath_Invalid(t *testing.T) {
	keys := []domain.TaskKey{
		{WorkflowID: "", StepID: "s", RunID: "r", Attempt: 1},
		{WorkflowID: "w", StepID: "../etc", RunID: "r", Attempt: 1},
		{WorkflowID: "w", StepID: "s", RunID: "..", Attempt: 1},
		{WorkflowID: "w", StepID: "s", RunID: "r", Attempt: 0},
	}
	for _, k := range keys {
		_, err := Path(k)
		assert.ErrorIs(t, err, ErrInvalidPath, "key %+v", k)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "*** STDOUT ***\nout\n*** STDERR ***\nerr\n", string(Format("out", "err")))
	assert.Equal(t, "*** STDOUT ***\n\n*** STDERR ***\n\n", string(Format("", "")))
}

func TestFileArchive_Write(t *testing.T) {
	root := t.TempDir()
	a := NewFileArchive(root)

	rel := "workflow_id=etl/run_id=run42/step_id=load/attempt=1.log"
	require.NoError(t, a.Write(context.Background(), rel, Format("a", "b")))
	require.NoError(t, a.Write(context.Background(), rel, Format("c", "d")))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "*** STDOUT ***\nc\n*** STDERR ***\nd\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(filepath.Join(root, filepath.FromSlash(rel))))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileArchive_WriteError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	a := NewFileArchive(blocker)
	err := a.Write(context.Background(), "x/attempt=1.log", []byte("x"))
	assert.Error(t, err)
}

type fakeS3 struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_Write(t *testing.T) {
	client := &fakeS3{}
	a := NewS3Archive(client, "logs", "outpost-logs-main")

	require.NoError(t, a.Write(context.Background(), "workflow_id=w/run_id=r/step_id=s/attempt=2.log", []byte("x")))

	assert.Equal(t, "logs", client.bucket)
	assert.Equal(t, "outpost-logs-main/workflow_id=w/run_id=r/step_id=s/attempt=2.log", client.key)
	assert.Equal(t, "x", string(client.body))
}

func TestS3Archive_WriteError(t *testing.T) {
	a := NewS3Archive(&fakeS3{err: errors.New("denied")}, "logs", "")

	err := a.Write(context.Background(), "p.log", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}
