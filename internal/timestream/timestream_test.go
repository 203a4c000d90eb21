package timestream

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	qtypes "github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	wtypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/query"
)

// fakeQuery serves rows 1..total, per rows a page.
type fakeQuery struct {
	total, per int
	err        error

	mu       sync.Mutex
	inputs   []*timestreamquery.QueryInput
	canceled []string
}

func (f *fakeQuery) Query(_ context.Context, in *timestreamquery.QueryInput, _ ...func(*timestreamquery.Options)) (*timestreamquery.QueryOutput, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if in.NextToken != nil {
		start, _ = strconv.Atoi(*in.NextToken)
	}
	out := &timestreamquery.QueryOutput{
		QueryId:     aws.String("q-1"),
		ColumnInfo:  []qtypes.ColumnInfo{{Name: aws.String("n"), Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeBigint}}},
		QueryStatus: &qtypes.QueryStatus{ProgressPercentage: 100},
	}
	end := start + f.per
	if end > f.total {
		end = f.total
	}
	for i := start; i < end; i++ {
		out.Rows = append(out.Rows, qtypes.Row{Data: []qtypes.Datum{{ScalarValue: aws.String(strconv.Itoa(i + 1))}}})
	}
	if end < f.total {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeQuery) CancelQuery(_ context.Context, in *timestreamquery.CancelQueryInput, _ ...func(*timestreamquery.Options)) (*timestreamquery.CancelQueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, aws.ToString(in.QueryId))
	return &timestreamquery.CancelQueryOutput{CancellationMessage: aws.String("ok")}, nil
}

type fakeWrite struct {
	dbs    [][]string
	tables map[string][]string
	err    error
}

func (f *fakeWrite) ListDatabases(_ context.Context, in *timestreamwrite.ListDatabasesInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.ListDatabasesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := 0
	if in.NextToken != nil {
		i, _ = strconv.Atoi(*in.NextToken)
	}
	out := &timestreamwrite.ListDatabasesOutput{}
	for _, n := range f.dbs[i] {
		out.Databases = append(out.Databases, wtypes.Database{DatabaseName: aws.String(n)})
	}
	if i+1 < len(f.dbs) {
		out.NextToken = aws.String(strconv.Itoa(i + 1))
	}
	return out, nil
}

func (f *fakeWrite) ListTables(_ context.Context, in *timestreamwrite.ListTablesInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.ListTablesOutput, error) {
	out := &timestreamwrite.ListTablesOutput{}
	for _, n := range f.tables[aws.ToString(in.DatabaseName)] {
		out.Tables = append(out.Tables, wtypes.Table{TableName: aws.String(n), DatabaseName: in.DatabaseName})
	}
	return out, nil
}

func TestTransportThroughSession(t *testing.T) {
	api := &fakeQuery{total: 10, per: 4}
	s := query.New(NewTransport(api, nil), "SELECT n FROM db.t", query.WithMaxRowsPerPage(4), query.WithClientToken("client-token-0123456789abcdef0123"))
	defer s.Close()

	_, err := s.Execute(context.Background())
	require.NoError(t, err)
	n := 0
	for {
		_, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 10, n)
	assert.Equal(t, "q-1", s.QueryID())

	require.Len(t, api.inputs, 3)
	assert.Equal(t, "client-token-0123456789abcdef0123", aws.ToString(api.inputs[0].ClientToken))
	assert.Nil(t, api.inputs[1].ClientToken)
	assert.Equal(t, "4", aws.ToString(api.inputs[1].NextToken))
	assert.EqualValues(t, 4, aws.ToInt32(api.inputs[2].MaxRows))
	assert.Equal(t, "SELECT n FROM db.t", aws.ToString(api.inputs[2].QueryString))
}

func TestTransportCancel(t *testing.T) {
	api := &fakeQuery{}
	tr := NewTransport(api, nil)
	require.NoError(t, tr.CancelQuery(context.Background(), "q-9"))
	assert.Equal(t, []string{"q-9"}, api.canceled)
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		err  error
		want diag.State
	}{
		{&smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}, diag.StateAuthFailed},
		{&smithy.GenericAPIError{Code: "ValidationException", Message: "line 1:8: mismatched input"}, diag.StateSyntax},
		{&smithy.GenericAPIError{Code: "ResourceNotFoundException"}, diag.StateTableNotFound},
		{&smithy.GenericAPIError{Code: "SomethingNew"}, diag.StateGeneral},
		{&smithy.OperationError{ServiceID: "Timestream Query", OperationName: "Query", Err: errors.New("connection reset")}, diag.StateLinkFailure},
		{context.DeadlineExceeded, diag.StateTimeout},
		{errors.Wrap(context.Canceled, "send"), diag.StateCanceled},
		{errors.New("boom"), diag.StateGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, diag.StateOf(translate(tt.err, "query")), "%v", tt.err)
	}

	err := translate(&smithy.GenericAPIError{Code: "ValidationException", Message: "bad column"}, "query")
	assert.Equal(t, "[42000] ValidationException: bad column: api error ValidationException: bad column", err.Error())
	assert.Nil(t, translate(nil, "query"))
}

func TestTransportErrorFailsExecute(t *testing.T) {
	api := &fakeQuery{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	s := query.New(NewTransport(api, nil), "SELECT 1")
	defer s.Close()
	_, err := s.Execute(context.Background())
	assert.Equal(t, diag.StateLinkFailure, diag.StateOf(err))
	assert.Equal(t, query.StateFailed, s.State())
}

func TestMetadataPaginates(t *testing.T) {
	m := NewMetadata(&fakeWrite{
		dbs:    [][]string{{"a", "b"}, {"c"}},
		tables: map[string][]string{"a": {"t1", "t2"}},
	})
	dbs, err := m.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, dbs)

	tables, err := m.ListTables(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, tables)

	_, err = NewMetadata(&fakeWrite{err: &smithy.GenericAPIError{Code: "AccessDeniedException"}}).ListDatabases(context.Background())
	assert.Equal(t, diag.StateAuthFailed, diag.StateOf(err))
}

func TestDescribeSQL(t *testing.T) {
	assert.Equal(t, `DESCRIBE "db"."my""table"`, DescribeSQL("db", `my"table`))
}

func isolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
}

func TestEnvironmentStaticCredentials(t *testing.T) {
	isolateAWS(t)
	c := config.Default()
	c.Auth = config.AuthIAM
	c.AccessKeyID = "AKID"
	c.SecretAccessKey = "SECRET"
	c.Region = "eu-west-1"
	c.EndpointOverride = "https://query.example.test"
	c.RequestTimeout = 2 * time.Second

	env, err := NewEnvironment(context.Background(), c, nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, "eu-west-1", env.AWS().Region)

	cr, err := env.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", cr.AccessKeyID)
	assert.Equal(t, "SECRET", cr.SecretAccessKey)

	cl := NewClient(env)
	qc, ok := cl.Query.(*timestreamquery.Client)
	require.True(t, ok)
	opts := qc.Options()
	assert.Equal(t, "https://query.example.test", aws.ToString(opts.BaseEndpoint))
	assert.Equal(t, aws.EndpointDiscoveryDisabled, opts.EndpointDiscovery.EnableEndpointDiscovery)

	require.NoError(t, env.Close())
	require.NoError(t, env.Close())
}
