// Package config holds the connection settings of the Timestream driver.
//
// Settings come from three layers, later layers winning: built-in defaults,
// the named entry of the YAML DSN file (when the connection string carries
// DSN=...), and the connection string itself. Keys are case-insensitive and
// several carry ODBC aliases (UID/PWD for the IAM key pair).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// AuthType selects how AWS credentials are obtained.
type AuthType string

const (
	AuthProfile AuthType = "AWS_PROFILE"
	AuthIAM     AuthType = "IAM"
	AuthAAD     AuthType = "AAD"
	AuthOkta    AuthType = "OKTA"
)

// LogLevel mirrors the driver's LogLevel connection attribute.
type LogLevel int

const (
	LogOff LogLevel = iota
	LogError
	LogWarning
	LogInfo
	LogDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogOff:
		return "OFF"
	case LogError:
		return "ERROR"
	case LogWarning:
		return "WARNING"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// Defaults.
const (
	DefaultRegion               = "us-east-1"
	DefaultRequestTimeout       = 3000 * time.Millisecond
	DefaultConnectionTimeout    = 1000 * time.Millisecond
	DefaultMaxRetryCount        = 0
	DefaultMaxConnections       = 25
	DefaultMaxRowsPerPage       = 0 // service decides
	DefaultPrefetchPages        = 1
	DefaultMaxConcurrentQueries = 0 // unlimited
	DefaultBusyTimeout          = 0
	DefaultCharset              = "UTF-8"
	DefaultMetadataCacheTTL     = 0

	// MaxRowsPerPageLimit is the largest MaxRows the Query API accepts.
	MaxRowsPerPageLimit = 1000
)

// Config is the parsed connection configuration.
type Config struct {
	DSN    string
	Driver string

	Auth            AuthType
	ProfileName     string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	Region           string
	EndpointOverride string

	RequestTimeout    time.Duration
	ConnectionTimeout time.Duration
	MaxRetryCount     int
	MaxConnections    int

	MaxRowsPerPage       int32
	PrefetchPages        int
	MaxConcurrentQueries int
	BusyTimeout          time.Duration

	LogLevel  LogLevel
	LogOutput string

	Charset string

	MetadataCacheTTL time.Duration
	MetadataRefresh  string

	// Extra keeps attributes the driver does not interpret so they can be
	// echoed back by SQLDriverConnect.
	Extra map[string]string
}

// Default returns a Config populated with the driver defaults.
func Default() *Config {
	return &Config{
		Auth:                 AuthProfile,
		Region:               DefaultRegion,
		RequestTimeout:       DefaultRequestTimeout,
		ConnectionTimeout:    DefaultConnectionTimeout,
		MaxRetryCount:        DefaultMaxRetryCount,
		MaxConnections:       DefaultMaxConnections,
		MaxRowsPerPage:       DefaultMaxRowsPerPage,
		PrefetchPages:        DefaultPrefetchPages,
		MaxConcurrentQueries: DefaultMaxConcurrentQueries,
		BusyTimeout:          DefaultBusyTimeout,
		LogLevel:             LogWarning,
		Charset:              DefaultCharset,
		MetadataCacheTTL:     DefaultMetadataCacheTTL,
		Extra:                map[string]string{},
	}
}

// Parse builds a Config from an ODBC connection string. If the string names
// a DSN, its entry from the DSN file is applied before the explicit keys.
func Parse(connStr string) (*Config, error) {
	return ParseWith(connStr, nil)
}

// ParseWith is Parse with an explicit DSN source. A nil source loads the DSN
// file from its default location on demand.
func ParseWith(connStr string, dsns DSNSource) (*Config, error) {
	attrs, err := SplitConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	c := Default()
	if name := lookupAttr(attrs, "dsn"); name != "" {
		if dsns == nil {
			f, err := LoadDSNFile(DefaultDSNFilePath())
			if err != nil {
				return nil, err
			}
			dsns = f
		}
		entry, ok := dsns.Lookup(name)
		if !ok {
			return nil, &DSNNotFoundError{Name: name}
		}
		for _, a := range attrsFromMap(entry) {
			if err := c.Apply(a.Key, a.Value); err != nil {
				return nil, errors.Wrapf(err, "dsn %q", name)
			}
		}
	}
	for _, a := range attrs {
		if err := c.Apply(a.Key, a.Value); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func lookupAttr(attrs []Attr, key string) string {
	v := ""
	for _, a := range attrs {
		if strings.EqualFold(a.Key, key) {
			v = a.Value
		}
	}
	return v
}

// Apply sets a single connection attribute.
//
//nolint:gocyclo // flat key dispatch.
func (c *Config) Apply(key, value string) error {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "dsn":
		c.DSN = value
	case "driver":
		c.Driver = value
	case "auth":
		c.Auth = AuthType(strings.ToUpper(strings.TrimSpace(value)))
	case "profilename", "profile":
		c.ProfileName = value
	case "uid", "accesskeyid":
		c.AccessKeyID = value
	case "pwd", "secretkey", "secretaccesskey":
		c.SecretAccessKey = value
	case "sessiontoken":
		c.SessionToken = value
	case "region":
		if value != "" {
			c.Region = value
		}
	case "endpointoverride", "endpoint":
		c.EndpointOverride = value
	case "requesttimeout":
		d, err := parseMillis(value, key)
		if err != nil {
			return err
		}
		c.RequestTimeout = d
	case "connectiontimeout":
		d, err := parseMillis(value, key)
		if err != nil {
			return err
		}
		c.ConnectionTimeout = d
	case "maxretrycountclient", "maxretrycount":
		n, err := parseCount(value, key)
		if err != nil {
			return err
		}
		c.MaxRetryCount = n
	case "maxconnections":
		n, err := parseCount(value, key)
		if err != nil {
			return err
		}
		c.MaxConnections = n
	case "maxrowperpage", "maxrowsperpage":
		n, err := parseCount(value, key)
		if err != nil {
			return err
		}
		c.MaxRowsPerPage = int32(n)
	case "prefetchpages":
		n, err := parseCount(value, key)
		if err != nil {
			return err
		}
		c.PrefetchPages = n
	case "maxconcurrentqueries":
		n, err := parseCount(value, key)
		if err != nil {
			return err
		}
		c.MaxConcurrentQueries = n
	case "busytimeout", "busy_timeout":
		d, err := parseMillis(value, key)
		if err != nil {
			return err
		}
		c.BusyTimeout = d
	case "loglevel":
		l, err := ParseLogLevel(value)
		if err != nil {
			return err
		}
		c.LogLevel = l
	case "logoutput", "logpath":
		c.LogOutput = value
	case "charset":
		if value != "" {
			c.Charset = value
		}
	case "metadatacachettl":
		d, err := parseMillis(value, key)
		if err != nil {
			return err
		}
		c.MetadataCacheTTL = d
	case "metadatarefresh":
		c.MetadataRefresh = value
	default:
		if c.Extra == nil {
			c.Extra = map[string]string{}
		}
		c.Extra[key] = value
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Auth {
	case AuthProfile:
	case AuthIAM:
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return errors.New("tsodbc: Auth=IAM requires UID/AccessKeyId and PWD/SecretKey")
		}
	case AuthAAD, AuthOkta:
		return errors.Errorf("tsodbc: Auth=%s is not supported by this driver", c.Auth)
	default:
		return errors.Errorf("tsodbc: unknown Auth %q", c.Auth)
	}
	if c.Region == "" {
		return errors.New("tsodbc: Region is required")
	}
	if c.MaxRowsPerPage < 0 {
		return errors.New("tsodbc: MaxRowPerPage must be >= 0")
	}
	if c.MaxRowsPerPage > MaxRowsPerPageLimit {
		return errors.Errorf("tsodbc: MaxRowPerPage must be <= %d", MaxRowsPerPageLimit)
	}
	if c.PrefetchPages < 1 {
		c.PrefetchPages = DefaultPrefetchPages
	}
	return nil
}

// Attrs renders the configuration as connection string attributes, masking
// nothing. It is used to build the completed connection string.
func (c *Config) Attrs() []Attr {
	attrs := []Attr{}
	add := func(k, v string) {
		if v != "" {
			attrs = append(attrs, Attr{Key: k, Value: v})
		}
	}
	add("DSN", c.DSN)
	add("Driver", c.Driver)
	add("Auth", string(c.Auth))
	add("ProfileName", c.ProfileName)
	add("UID", c.AccessKeyID)
	add("PWD", c.SecretAccessKey)
	add("SessionToken", c.SessionToken)
	add("Region", c.Region)
	add("EndpointOverride", c.EndpointOverride)
	add("RequestTimeout", strconv.FormatInt(c.RequestTimeout.Milliseconds(), 10))
	add("ConnectionTimeout", strconv.FormatInt(c.ConnectionTimeout.Milliseconds(), 10))
	add("MaxRetryCountClient", strconv.Itoa(c.MaxRetryCount))
	add("MaxConnections", strconv.Itoa(c.MaxConnections))
	if c.MaxRowsPerPage > 0 {
		add("MaxRowPerPage", strconv.Itoa(int(c.MaxRowsPerPage)))
	}
	add("LogLevel", c.LogLevel.String())
	add("LogOutput", c.LogOutput)
	for _, a := range attrsFromMap(c.Extra) {
		attrs = append(attrs, a)
	}
	return attrs
}

// ConnectionString is the completed connection string returned to ODBC
// applications by SQLDriverConnect.
func (c *Config) ConnectionString() string {
	return FormatConnectionString(c.Attrs())
}

// String renders the configuration with secrets masked, for logs.
func (c *Config) String() string {
	attrs := c.Attrs()
	for i := range attrs {
		switch attrs[i].Key {
		case "PWD", "SessionToken":
			attrs[i].Value = "****"
		}
	}
	return FormatConnectionString(attrs)
}

// ParseLogLevel accepts names (case-insensitive) or the numbers 0-4.
func ParseLogLevel(value string) (LogLevel, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	switch v {
	case "", "OFF", "0":
		return LogOff, nil
	case "ERROR", "1":
		return LogError, nil
	case "WARNING", "WARN", "2":
		return LogWarning, nil
	case "INFO", "3":
		return LogInfo, nil
	case "DEBUG", "4":
		return LogDebug, nil
	}
	return LogOff, errors.Errorf("tsodbc: invalid LogLevel %q", value)
}

func parseCount(value, key string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Errorf("tsodbc: invalid %s value %q", key, value)
	}
	if n < 0 {
		return 0, errors.Errorf("tsodbc: %s must be >= 0", key)
	}
	return n, nil
}

// parseMillis reads a plain integer as milliseconds, otherwise a Go duration.
func parseMillis(value, key string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	isNumeric := true
	for _, r := range value {
		if r < '0' || r > '9' {
			isNumeric = false
			break
		}
	}
	if isNumeric {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, errors.Errorf("tsodbc: invalid %s value %q", key, value)
		}
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Errorf("tsodbc: invalid %s value %q", key, value)
	}
	if d < 0 {
		return 0, errors.Errorf("tsodbc: %s must be >= 0", key)
	}
	return d, nil
}
