package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claudia-liauw/health-app/internal/models"
	"github.com/claudia-liauw/health-app/internal/utils"
)

const export = `Id,Time,Value
2022484408,4/12/2016 7:21:00 AM,97
2022484408,4/12/2016 7:21:05 AM,
2022484408,4/19/2016 11:59:55 PM,80
2022484408,4/20/2016 12:00:00 AM,81
2026352035,4/12/2016 7:21:00 AM,60
`

func TestReadCSVFirstSubjectByDefault(t *testing.T) {
	samples, err := ReadCSV(strings.NewReader(export), Filter{})
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, "2022484408", samples[0].SubjectID)
	assert.Equal(t, time.Date(2016, 4, 12, 7, 21, 0, 0, time.UTC), samples[0].Timestamp)
	assert.Equal(t, 97.0, samples[0].Value)
	assert.True(t, samples[1].Missing())
}

func TestReadCSVRangeAndSubject(t *testing.T) {
	cutoff := time.Date(2016, 4, 20, 0, 0, 0, 0, time.UTC)
	samples, err := ReadCSV(strings.NewReader(export), Filter{
		SubjectID: "2022484408",
		Range:     models.TimeRange{End: cutoff},
	})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 80.0, samples[2].Value)

	other, err := ReadCSV(strings.NewReader(export), Filter{SubjectID: "2026352035"})
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, 60.0, other[0].Value)

	all, err := ReadCSV(strings.NewReader(export), Filter{AllSubjects: true})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestReadCSVHeaderOrderAndErrors(t *testing.T) {
	samples, err := ReadCSV(strings.NewReader("Value,Id,Time\n72,a,2016-04-12T07:00:00Z\n"), Filter{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 72.0, samples[0].Value)

	_, err = ReadCSV(strings.NewReader("Id,Value\na,1\n"), Filter{})
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("Id,Time,Value\na,2016-04-12T07:00:00Z,high\n"), Filter{})
	assert.ErrorContains(t, err, "line 2")
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "csv", appErr.Op)

	_, err = ReadCSV(strings.NewReader(""), Filter{})
	assert.Error(t, err)
}

type fakeS3 struct {
	bucket string
	key    string
	body   string
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = aws.ToString(params.Bucket)
	f.key = aws.ToString(params.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestOpenS3Location(t *testing.T) {
	client := &fakeS3{body: export}
	opener := NewOpenerWithClient(client)

	rc, err := opener.Open(context.Background(), "s3://fitbit-exports/2016/heartrate_seconds_merged.csv")
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "fitbit-exports", client.bucket)
	assert.Equal(t, "2016/heartrate_seconds_merged.csv", client.key)

	samples, err := ReadCSV(rc, Filter{})
	require.NoError(t, err)
	assert.Len(t, samples, 4)

	_, err = opener.Open(context.Background(), "s3://bucket-only")
	assert.Error(t, err)
}

func TestOpenLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hr.csv")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	rc, err := NewOpener(S3Options{}).Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()

	samples, err := ReadCSV(rc, Filter{})
	require.NoError(t, err)
	assert.Len(t, samples, 4)
}
