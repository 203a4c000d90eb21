package timestream

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/logging"
	"github.com/SimonWaldherr/tsodbc/internal/query"
)

// Transport executes query pages against the Timestream query API.
type Transport struct {
	api QueryAPI
	log logrus.FieldLogger
}

var (
	_ query.Transport = (*Transport)(nil)
	_ query.Canceler  = (*Transport)(nil)
)

// NewTransport returns a transport over api.
func NewTransport(api QueryAPI, log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logging.Discard()
	}
	return &Transport{api: api, log: log}
}

// ExecutePage sends one Query call. The client token is only attached when
// the request carries one, which the session does for the first page.
func (t *Transport) ExecutePage(ctx context.Context, req query.Request) (*query.Page, error) {
	in := &timestreamquery.QueryInput{
		QueryString: aws.String(req.SQL),
		NextToken:   req.NextToken,
	}
	if req.ClientToken != "" {
		in.ClientToken = aws.String(req.ClientToken)
	}
	if req.MaxRows > 0 {
		in.MaxRows = aws.Int32(req.MaxRows)
	}
	out, err := t.api.Query(ctx, in)
	if err != nil {
		return nil, translate(err, "query")
	}
	p := &query.Page{
		QueryID:   aws.ToString(out.QueryId),
		Columns:   out.ColumnInfo,
		Rows:      out.Rows,
		NextToken: out.NextToken,
	}
	if out.QueryStatus != nil {
		p.Progress = out.QueryStatus.ProgressPercentage
	}
	t.log.WithFields(logrus.Fields{
		"query_id": p.QueryID,
		"rows":     len(p.Rows),
		"progress": p.Progress,
	}).Trace("query page")
	return p, nil
}

// CancelQuery asks the service to stop a running query.
func (t *Transport) CancelQuery(ctx context.Context, queryID string) error {
	out, err := t.api.CancelQuery(ctx, &timestreamquery.CancelQueryInput{QueryId: aws.String(queryID)})
	if err != nil {
		return translate(err, "cancel query")
	}
	t.log.WithField("query_id", queryID).WithField("message", aws.ToString(out.CancellationMessage)).Debug("query canceled")
	return nil
}
