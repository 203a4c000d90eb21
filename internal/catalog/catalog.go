// Package catalog answers SQLTables and SQLColumns requests. Timestream
// databases are exposed as catalogs; there are no schemas.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/logging"
	"github.com/SimonWaldherr/tsodbc/internal/query"
)

// Lister enumerates databases and tables.
type Lister interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]string, error)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTTL keeps listings for d. Zero disables caching unless a refresh
// schedule is running.
func WithTTL(d time.Duration) Option { return func(c *Catalog) { c.ttl = d } }

// WithLogger sets the catalog logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSessionOptions sets the options of the DESCRIBE sessions run by Columns.
func WithSessionOptions(opts ...query.Option) Option {
	return func(c *Catalog) { c.sessionOpts = opts }
}

type listing struct {
	names []string
	at    time.Time
}

// Catalog serves metadata result sets.
type Catalog struct {
	lister      Lister
	transport   query.Transport
	ttl         time.Duration
	log         logrus.FieldLogger
	sessionOpts []query.Option
	now         func() time.Time

	mu        sync.Mutex
	databases *listing
	tables    map[string]*listing
	cron      *cron.Cron
}

// New returns a catalog reading listings from lister and column metadata by
// running DESCRIBE over transport.
func New(lister Lister, transport query.Transport, opts ...Option) *Catalog {
	c := &Catalog{
		lister:    lister,
		transport: transport,
		log:       logging.Discard(),
		now:       time.Now,
		tables:    make(map[string]*listing),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var refreshParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StartRefresh reloads every listing on the cron schedule spec, e.g.
// "@every 5m" or "0 */10 * * * *". Overlapping runs are skipped.
func (c *Catalog) StartRefresh(spec string) error {
	if _, err := refreshParser.Parse(spec); err != nil {
		return diag.Wrap(err, diag.StateInvalidAttribute, "catalog: invalid refresh schedule %q", spec)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return diag.New(diag.StateFunctionSequence, "catalog: refresh already scheduled")
	}
	cr := cron.New(
		cron.WithParser(refreshParser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := cr.AddFunc(spec, func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.log.WithError(err).Warn("metadata refresh failed")
		}
	}); err != nil {
		return diag.Wrap(err, diag.StateInvalidAttribute, "catalog: schedule refresh")
	}
	cr.Start()
	c.cron = cr
	c.log.WithField("schedule", spec).Info("metadata refresh scheduled")
	return nil
}

// Close stops the refresh schedule and waits for a running refresh.
func (c *Catalog) Close() {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()
	if cr != nil {
		<-cr.Stop().Done()
	}
}

// Refresh reloads the database list and the table list of every database.
func (c *Catalog) Refresh(ctx context.Context) error {
	dbs, err := c.lister.ListDatabases(ctx)
	if err != nil {
		return err
	}
	sort.Strings(dbs)
	tables := make(map[string]*listing, len(dbs))
	now := c.now()
	for _, db := range dbs {
		names, err := c.lister.ListTables(ctx, db)
		if err != nil {
			return err
		}
		sort.Strings(names)
		tables[db] = &listing{names: names, at: now}
	}
	c.mu.Lock()
	c.databases = &listing{names: dbs, at: now}
	c.tables = tables
	c.mu.Unlock()
	c.log.WithField("databases", len(dbs)).Debug("metadata refreshed")
	return nil
}

// Invalidate drops every cached listing.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.databases = nil
	c.tables = make(map[string]*listing)
	c.mu.Unlock()
}

func (c *Catalog) fresh(l *listing) bool {
	if l == nil {
		return false
	}
	if c.cron != nil {
		return true
	}
	return c.ttl > 0 && c.now().Sub(l.at) < c.ttl
}

// Databases returns the sorted database names.
func (c *Catalog) Databases(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if l := c.databases; c.fresh(l) {
		c.mu.Unlock()
		return l.names, nil
	}
	c.mu.Unlock()

	dbs, err := c.lister.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(dbs)
	c.mu.Lock()
	c.databases = &listing{names: dbs, at: c.now()}
	c.mu.Unlock()
	return dbs, nil
}

// TableNames returns the sorted table names of database.
func (c *Catalog) TableNames(ctx context.Context, database string) ([]string, error) {
	c.mu.Lock()
	if l := c.tables[database]; c.fresh(l) {
		c.mu.Unlock()
		return l.names, nil
	}
	c.mu.Unlock()

	names, err := c.lister.ListTables(ctx, database)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	c.mu.Lock()
	c.tables[database] = &listing{names: names, at: c.now()}
	c.mu.Unlock()
	return names, nil
}

// matchingDatabases returns the databases matching pattern.
func (c *Catalog) matchingDatabases(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && isLiteral(pattern) {
		// A literal name needs no listing; an unknown database yields no tables.
		return []string{unescape(pattern)}, nil
	}
	dbs, err := c.Databases(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, db := range dbs {
		if Match(pattern, db) {
			out = append(out, db)
		}
	}
	return out, nil
}

func (c *Catalog) matchingTables(ctx context.Context, db, pattern string) ([]string, error) {
	names, err := c.TableNames(ctx, db)
	if err != nil {
		if diag.StateOf(err) == diag.StateTableNotFound {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, n := range names {
		if Match(pattern, n) {
			out = append(out, n)
		}
	}
	return out, nil
}
