package timestream

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
)

// Metadata lists databases and tables through the write API.
type Metadata struct {
	api WriteAPI
}

// NewMetadata returns a metadata reader over api.
func NewMetadata(api WriteAPI) *Metadata { return &Metadata{api: api} }

// ListDatabases returns every database name visible to the caller.
func (m *Metadata) ListDatabases(ctx context.Context) ([]string, error) {
	var out []string
	p := timestreamwrite.NewListDatabasesPaginator(m.api, &timestreamwrite.ListDatabasesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, translate(err, "list databases")
		}
		for _, db := range page.Databases {
			out = append(out, aws.ToString(db.DatabaseName))
		}
	}
	return out, nil
}

// ListTables returns the table names of database.
func (m *Metadata) ListTables(ctx context.Context, database string) ([]string, error) {
	var out []string
	p := timestreamwrite.NewListTablesPaginator(m.api, &timestreamwrite.ListTablesInput{
		DatabaseName: aws.String(database),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, translate(err, "list tables of "+database)
		}
		for _, t := range page.Tables {
			out = append(out, aws.ToString(t.TableName))
		}
	}
	return out, nil
}

// QuoteIdentifier quotes an identifier for Timestream SQL.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// DescribeSQL returns the statement describing the columns of a table.
func DescribeSQL(database, table string) string {
	return "DESCRIBE " + QuoteIdentifier(database) + "." + QuoteIdentifier(table)
}
