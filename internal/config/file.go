package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DSNFileEnv names the environment variable that overrides the DSN file path.
const DSNFileEnv = "TSODBC_DSN_FILE"

// DSNSource resolves a data source name to its stored attributes.
type DSNSource interface {
	Lookup(name string) (map[string]string, bool)
}

// DSNNotFoundError is returned when a DSN is not present in the DSN file.
type DSNNotFoundError struct{ Name string }

func (e *DSNNotFoundError) Error() string {
	return "tsodbc: data source " + e.Name + " not found"
}

// DSNFile is the YAML data source file. Structure:
//
//	dsn:
//	  timestream-prod:
//	    Region: us-west-2
//	    Auth: AWS_PROFILE
//	    ProfileName: analytics
type DSNFile struct {
	DSN map[string]map[string]string `yaml:"dsn"`
}

// Lookup finds a DSN by name, case-insensitively.
func (f *DSNFile) Lookup(name string) (map[string]string, bool) {
	if f == nil {
		return nil, false
	}
	if e, ok := f.DSN[name]; ok {
		return e, true
	}
	for k, e := range f.DSN {
		if strings.EqualFold(k, name) {
			return e, true
		}
	}
	return nil, false
}

// Names lists the configured data source names.
func (f *DSNFile) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.DSN))
	for k := range f.DSN {
		out = append(out, k)
	}
	return out
}

// DefaultDSNFilePath returns $TSODBC_DSN_FILE or ~/.tsodbc/dsn.yml.
func DefaultDSNFilePath() string {
	if p := os.Getenv(DSNFileEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tsodbc", "dsn.yml")
	}
	return filepath.Join(home, ".tsodbc", "dsn.yml")
}

// LoadDSNFile reads and parses a DSN file. A missing file yields an empty
// DSNFile so that connection strings without DSN keep working.
func LoadDSNFile(path string) (*DSNFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &DSNFile{DSN: map[string]map[string]string{}}, nil
		}
		return nil, errors.Wrapf(err, "tsodbc: read dsn file %s", path)
	}
	return ParseDSNFile(b)
}

// ParseDSNFile parses DSN file contents.
func ParseDSNFile(b []byte) (*DSNFile, error) {
	var f DSNFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "tsodbc: parse dsn file")
	}
	if f.DSN == nil {
		f.DSN = map[string]map[string]string{}
	}
	return &f, nil
}
