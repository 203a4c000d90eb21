package query

import (
	"context"
	"database/sql/driver"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

func TestSinglePageNeverGoesAsync(t *testing.T) {
	tr := loadScenario(t, "single")
	s := New(tr, "SELECT host, cpu FROM t")
	defer s.Close()

	out, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRows, out)
	assert.Equal(t, "q-test", s.QueryID())
	assert.Len(t, s.Columns(), 2)

	got, err := drain(s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"a", "1", "b", "2"}, got)
	assert.False(t, s.AsyncStarted())
	assert.Equal(t, StateExhausted, s.State())
	assert.EqualValues(t, 0, s.Stats().FetchersStarted)
	assert.EqualValues(t, 2, s.RowNumber())
}

func TestThreeSingleRowPages(t *testing.T) {
	tr := loadScenario(t, "three_single_row")
	s := New(tr, "SELECT n FROM t", WithClientToken("tok-1"), WithMaxRowsPerPage(1))
	defer s.Close()

	_, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, s.AsyncStarted())

	got, err := drain(s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"1", "2", "3"}, got)

	reqs := tr.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "tok-1", reqs[0].ClientToken)
	assert.Nil(t, reqs[0].NextToken)
	for i, r := range reqs[1:] {
		assert.Empty(t, r.ClientToken)
		assert.Equal(t, strconv.Itoa(i+1), *r.NextToken)
		assert.Equal(t, "SELECT n FROM t", r.SQL)
		assert.EqualValues(t, 1, r.MaxRows)
	}
	st := s.Stats()
	assert.EqualValues(t, 2, st.FetchersStarted)
	assert.EqualValues(t, 3, st.PagesReceived)
	assert.EqualValues(t, 3, st.RowsDelivered)
}

func TestTenThousandRowsInPagesOfThree(t *testing.T) {
	tr := generated(10000, 3)
	s := New(tr, "SELECT n FROM t")
	defer s.Close()

	_, err := s.Execute(context.Background())
	require.NoError(t, err)

	n := 0
	for {
		r, err := s.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
		require.Equal(t, strconv.Itoa(n), values(r)[0])
	}
	assert.Equal(t, 10000, n)
	assert.EqualValues(t, len(tr.pages)-1, s.Stats().FetchersStarted)
	assert.EqualValues(t, len(tr.pages), s.Stats().PagesReceived)
}

func TestEmptyPagesAreSkipped(t *testing.T) {
	tr := loadScenario(t, "empty_pages_between")
	s := New(tr, "SELECT n FROM t")
	defer s.Close()

	out, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out)

	got, err := drain(s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.EqualValues(t, 4, s.Stats().FetchersStarted)
}

func TestEmptyResult(t *testing.T) {
	s := New(loadScenario(t, "empty"), "SELECT n FROM t WHERE false")
	defer s.Close()

	out, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, out)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateExhausted, s.State())
}

func TestBackgroundErrorSurfacesInOrder(t *testing.T) {
	tr := loadScenario(t, "fail_third")
	s := New(tr, "SELECT n FROM t")
	defer s.Close()

	_, err := s.Execute(context.Background())
	require.NoError(t, err)

	got, err := drain(s)
	require.Error(t, err)
	assert.EqualError(t, err, "ThrottlingException")
	assert.Equal(t, []string{"1", "2", "3", "4"}, got)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, err, s.Err())

	// sticky, and the page after the failure is never requested
	_, again := s.Next()
	assert.Equal(t, err, again)
	assert.Len(t, tr.requests(), 3)
}

func TestFirstPageErrorStartsNothing(t *testing.T) {
	tr := loadScenario(t, "single")
	tr.fail[0] = errors.New("AccessDeniedException")
	s := New(tr, "SELECT 1")
	defer s.Close()

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.False(t, s.AsyncStarted())
	_, err = s.Next()
	assert.EqualError(t, err, "AccessDeniedException")
}

func TestCloseAtEveryPosition(t *testing.T) {
	const total = 20
	for k := 0; k <= total; k++ {
		tr := generated(total, 2)
		s := New(tr, "SELECT n FROM t")
		_, err := s.Execute(context.Background())
		require.NoError(t, err)
		for i := 0; i < k; i++ {
			_, err := s.Next()
			require.NoError(t, err, "row %d", i+1)
		}
		require.NoError(t, s.Close())
		assert.Equal(t, StateClosed, s.State())

		_, err = s.Next()
		assert.ErrorIs(t, err, io.EOF, "after close at %d", k)
		assert.EqualValues(t, k, s.Stats().RowsDelivered)
		require.NoError(t, s.Close())
	}
}

func TestCloseDuringInFlightFetch(t *testing.T) {
	tr := generated(6, 2)
	tr.gate = make(chan struct{})
	tr.started = make(chan int, 8)
	s := New(tr, "SELECT n FROM t")

	_, err := s.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, <-tr.started)
	require.Equal(t, 1, <-tr.started)

	// the consumer blocks waiting for page 2
	consumed := make(chan error, 1)
	go func() {
		_, err := drain(s)
		consumed <- err
	}()
	require.Eventually(t, func() bool { return s.State() == StateFetchingNext }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool { return s.State() == StateClosed }, time.Second, time.Millisecond)

	select {
	case <-closed:
		t.Fatal("close returned while a fetch was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(tr.gate)
	<-closed

	assert.ErrorIs(t, <-consumed, io.EOF)
	st := s.Stats()
	assert.EqualValues(t, 1, st.PagesDiscarded)
	assert.EqualValues(t, 1, st.FetchersStarted)
	s.mu.Lock()
	assert.Empty(t, s.queue)
	s.mu.Unlock()
}

func TestCancelAbortsInFlightFetch(t *testing.T) {
	tr := generated(6, 2)
	tr.gate = make(chan struct{})
	tr.started = make(chan int, 8)
	s := New(tr, "SELECT n FROM t")

	_, err := s.Execute(context.Background())
	require.NoError(t, err)
	<-tr.started
	<-tr.started

	require.NoError(t, s.Cancel(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []string{"q-test"}, tr.canceled)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCancelWakesWaitingConsumerWithEOF(t *testing.T) {
	tr := generated(6, 2)
	tr.gate = make(chan struct{})
	tr.started = make(chan int, 8)
	tr.cancelDelay = 30 * time.Millisecond
	s := New(tr, "SELECT n FROM t")

	_, err := s.Execute(context.Background())
	require.NoError(t, err)
	<-tr.started
	<-tr.started

	consumed := make(chan error, 1)
	go func() {
		_, err := drain(s)
		consumed <- err
	}()
	require.Eventually(t, func() bool { return s.State() == StateFetchingNext }, time.Second, time.Millisecond)

	require.NoError(t, s.Cancel(context.Background()))
	assert.ErrorIs(t, <-consumed, io.EOF)
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Err())
	assert.EqualValues(t, 1, s.Stats().PagesDiscarded)
	assert.Equal(t, []string{"q-test"}, tr.canceled)
}

func TestCancelBeforeFirstPage(t *testing.T) {
	started := make(chan struct{})
	tr := TransportFunc(func(ctx context.Context, _ Request) (*Page, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := New(tr, "SELECT 1")

	done := make(chan error, 1)
	go func() {
		_, err := s.Execute(context.Background())
		done <- err
	}()
	<-started
	require.NoError(t, s.Cancel(context.Background()))
	err := <-done
	assert.Equal(t, diag.StateCanceled, diag.StateOf(err))
}

func TestRequestTimeout(t *testing.T) {
	tr := TransportFunc(func(ctx context.Context, _ Request) (*Page, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := New(tr, "SELECT 1", WithTimeout(5*time.Millisecond))
	defer s.Close()

	_, err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, diag.StateTimeout, diag.StateOf(err))
}

func TestQueueDepthBoundsPrefetch(t *testing.T) {
	for _, depth := range []int{1, 3} {
		tr := generated(40, 2)
		s := New(tr, "SELECT n FROM t", WithQueueDepth(depth))
		_, err := s.Execute(context.Background())
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return s.Stats().PagesReceived == int64(depth+1)
		}, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		assert.EqualValues(t, depth, s.Stats().FetchersStarted, "depth %d", depth)

		got, err := drain(s)
		assert.ErrorIs(t, err, io.EOF)
		assert.Len(t, got, 40)
		require.NoError(t, s.Close())
	}
}

type failingDecoder struct{ bad int64 }

func (d failingDecoder) DecodeRow(_ []types.ColumnInfo, r types.Row, dest []driver.Value) error {
	n, _ := strconv.ParseInt(values(r)[0], 10, 64)
	if n == d.bad {
		return diag.New(diag.StateInvalidCharValue, "bad value %d", n)
	}
	dest[0] = n
	return nil
}

func TestScanReportsRowErrorAndContinues(t *testing.T) {
	s := New(generated(5, 2), "SELECT n FROM t")
	defer s.Close()
	_, err := s.Execute(context.Background())
	require.NoError(t, err)

	dest := make([]driver.Value, 1)
	var got []int64
	var rowErrs []int64
	for {
		err := s.Scan(failingDecoder{bad: 3}, dest)
		if err == io.EOF {
			break
		}
		var re *RowError
		if errors.As(err, &re) {
			rowErrs = append(rowErrs, re.Row)
			assert.Equal(t, diag.StateInvalidCharValue, diag.StateOf(err))
			continue
		}
		require.NoError(t, err)
		got = append(got, dest[0].(int64))
	}
	assert.Equal(t, []int64{1, 2, 4, 5}, got)
	assert.Equal(t, []int64{3}, rowErrs)
}

func TestSequenceErrors(t *testing.T) {
	s := New(loadScenario(t, "single"), "SELECT 1")
	defer s.Close()

	_, err := s.Next()
	assert.Equal(t, diag.StateFunctionSequence, diag.StateOf(err))

	_, err = s.Execute(context.Background())
	require.NoError(t, err)
	_, err = s.Execute(context.Background())
	assert.Equal(t, diag.StateFunctionSequence, diag.StateOf(err))
}

func TestStaticSession(t *testing.T) {
	s := NewStatic(&Page{Rows: []types.Row{row("x"), row("y")}})
	got, err := drain(s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"x", "y"}, got)
	assert.False(t, s.AsyncStarted())

	_, err = s.Execute(context.Background())
	assert.Error(t, err)
	require.NoError(t, s.Close())

	empty := NewStatic(nil)
	_, err = empty.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStateAndOutcomeNames(t *testing.T) {
	assert.Equal(t, "FETCHING_NEXT", StateFetchingNext.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "PENDING", OutcomePending.String())
}
