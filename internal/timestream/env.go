// Package timestream talks to the Amazon Timestream query and write APIs.
package timestream

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/logging"
)

// Environment is the SDK context of one connection configuration: the
// resolved AWS configuration and the HTTP client shared by every API client
// built from it. It replaces process-wide SDK initialisation; its lifetime
// is that of its owner.
type Environment struct {
	cfg  *config.Config
	aws  aws.Config
	http *awshttp.BuildableClient
	log  logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

// NewEnvironment resolves credentials and region for c. Nothing is sent over
// the network.
func NewEnvironment(ctx context.Context, c *config.Config, log logrus.FieldLogger) (*Environment, error) {
	if log == nil {
		log = logging.Discard()
	}
	hc := awshttp.NewBuildableClient().
		WithTimeout(c.RequestTimeout).
		WithDialerOptions(func(d *net.Dialer) {
			if c.ConnectionTimeout > 0 {
				d.Timeout = c.ConnectionTimeout
			}
		}).
		WithTransportOptions(func(tr *http.Transport) {
			if c.MaxConnections > 0 {
				tr.MaxConnsPerHost = c.MaxConnections
				tr.MaxIdleConnsPerHost = c.MaxConnections
			}
		})

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
		awsconfig.WithHTTPClient(hc),
	}
	if c.MaxRetryCount > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(c.MaxRetryCount+1))
	}
	switch c.Auth {
	case config.AuthIAM:
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)))
	default:
		if c.ProfileName != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(c.ProfileName))
		}
	}

	ac, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, diag.Wrap(err, diag.StateConnectFailed, "timestream: load AWS configuration")
	}
	log.WithFields(logrus.Fields{
		"region":  ac.Region,
		"auth":    c.Auth,
		"profile": c.ProfileName,
	}).Debug("sdk environment ready")
	return &Environment{cfg: c, aws: ac, http: hc, log: log}, nil
}

// AWS returns the resolved AWS configuration.
func (e *Environment) AWS() aws.Config { return e.aws }

// Config returns the connection settings the environment was built from.
func (e *Environment) Config() *config.Config { return e.cfg }

// Logger returns the environment logger.
func (e *Environment) Logger() logrus.FieldLogger { return e.log }

// Credentials resolves the configured credentials. It is used to validate
// a connection before the first query.
func (e *Environment) Credentials(ctx context.Context) (aws.Credentials, error) {
	if e.aws.Credentials == nil {
		return aws.Credentials{}, diag.New(diag.StateAuthFailed, "timestream: no credentials configured")
	}
	cr, err := e.aws.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, diag.Wrap(err, diag.StateAuthFailed, "timestream: resolve credentials")
	}
	return cr, nil
}

// Close releases idle connections. Clients built from a closed environment
// must not be used.
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.http.GetTransport().CloseIdleConnections()
	e.log.Debug("sdk environment closed")
	return nil
}
