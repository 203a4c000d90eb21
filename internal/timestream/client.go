package timestream

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
)

// QueryAPI is the subset of the Timestream query client the driver uses.
type QueryAPI interface {
	Query(ctx context.Context, in *timestreamquery.QueryInput, optFns ...func(*timestreamquery.Options)) (*timestreamquery.QueryOutput, error)
	CancelQuery(ctx context.Context, in *timestreamquery.CancelQueryInput, optFns ...func(*timestreamquery.Options)) (*timestreamquery.CancelQueryOutput, error)
}

// WriteAPI is the subset of the Timestream write client used for metadata.
type WriteAPI interface {
	timestreamwrite.ListDatabasesAPIClient
	timestreamwrite.ListTablesAPIClient
}

// Client bundles the query and write API clients of one connection.
type Client struct {
	Query QueryAPI
	Write WriteAPI
}

// NewClient builds API clients from env. An endpoint override replaces
// endpoint discovery for both services.
func NewClient(env *Environment) *Client {
	endpoint := env.cfg.EndpointOverride
	q := timestreamquery.NewFromConfig(env.aws, func(o *timestreamquery.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.EndpointDiscovery.EnableEndpointDiscovery = aws.EndpointDiscoveryDisabled
		}
	})
	w := timestreamwrite.NewFromConfig(env.aws, func(o *timestreamwrite.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.EndpointDiscovery.EnableEndpointDiscovery = aws.EndpointDiscoveryDisabled
		}
	})
	return &Client{Query: q, Write: w}
}
