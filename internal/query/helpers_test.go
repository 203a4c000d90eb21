package query

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/pkg/errors"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Structure mirrors testdata/pages.yml
type fixtureFile struct {
	Scenarios map[string]struct {
		Columns []string `yaml:"columns"`
		Pages   []struct {
			Rows [][]string `yaml:"rows"`
			Fail string     `yaml:"fail"`
		} `yaml:"pages"`
	} `yaml:"scenarios"`
}

func loadScenario(t *testing.T, name string) *pagedTransport {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "pages.yml"))
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		t.Fatalf("parse fixtures: %v", err)
	}
	sc, ok := f.Scenarios[name]
	if !ok {
		t.Fatalf("no scenario %q", name)
	}
	p := &pagedTransport{fail: map[int]error{}}
	for _, c := range sc.Columns {
		p.cols = append(p.cols, types.ColumnInfo{
			Name: aws.String(c),
			Type: &types.Type{ScalarType: types.ScalarTypeVarchar},
		})
	}
	for i, pg := range sc.Pages {
		var rows []types.Row
		for _, r := range pg.Rows {
			rows = append(rows, row(r...))
		}
		p.pages = append(p.pages, rows)
		if pg.Fail != "" {
			p.fail[i] = errors.New(pg.Fail)
		}
	}
	return p
}

// generated returns a transport serving n rows numbered 1..n, per rows a page.
func generated(n, per int) *pagedTransport {
	p := &pagedTransport{fail: map[int]error{}}
	p.cols = []types.ColumnInfo{{Name: aws.String("n"), Type: &types.Type{ScalarType: types.ScalarTypeBigint}}}
	for i := 1; i <= n; i += per {
		var rows []types.Row
		for j := i; j < i+per && j <= n; j++ {
			rows = append(rows, row(strconv.Itoa(j)))
		}
		p.pages = append(p.pages, rows)
	}
	return p
}

func row(vals ...string) types.Row {
	r := types.Row{}
	for _, v := range vals {
		r.Data = append(r.Data, types.Datum{ScalarValue: aws.String(v)})
	}
	return r
}

func values(r types.Row) []string {
	out := make([]string, 0, len(r.Data))
	for _, d := range r.Data {
		out = append(out, aws.ToString(d.ScalarValue))
	}
	return out
}

// pagedTransport serves pages addressed by their index; the continuation
// token is the index of the next page.
type pagedTransport struct {
	cols  []types.ColumnInfo
	pages [][]types.Row
	fail  map[int]error
	// gate, when set, holds every request after the first until closed.
	gate chan struct{}
	// started receives the page index of each request as it begins.
	started chan int
	// cancelDelay stretches CancelQuery like a slow service round trip.
	cancelDelay time.Duration

	mu       sync.Mutex
	calls    []Request
	canceled []string
}

func (p *pagedTransport) ExecutePage(ctx context.Context, req Request) (*Page, error) {
	idx := 0
	if req.NextToken != nil {
		var err error
		if idx, err = strconv.Atoi(*req.NextToken); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if p.started != nil {
		p.started <- idx
	}
	if idx > 0 && p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := p.fail[idx]; err != nil {
		return nil, err
	}
	page := &Page{QueryID: "q-test", Columns: p.cols, Rows: p.pages[idx]}
	if idx+1 < len(p.pages) {
		page.NextToken = aws.String(strconv.Itoa(idx + 1))
	}
	return page, nil
}

func (p *pagedTransport) CancelQuery(_ context.Context, id string) error {
	time.Sleep(p.cancelDelay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, id)
	return nil
}

func (p *pagedTransport) requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}

// drain reads every remaining row and the terminating error.
func drain(s *Session) ([]string, error) {
	var out []string
	for {
		r, err := s.Next()
		if err != nil {
			return out, err
		}
		out = append(out, values(r)...)
	}
}
