// Package stack loads a stack configuration file into a validated Descriptor.
package stack

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/types"
)

const (
	// DefaultElasticsearchURL is used when the configuration has no
	// stack.elasticsearch.host. Older configuration files never carried the
	// key, so the default keeps them loading.
	DefaultElasticsearchURL = "https://localhost:9200"

	DefaultFleetUsername    = "elastic"
	DefaultAgentPolicy      = "loggy agent policy"
	DefaultBootstrapTimeout = 10 * time.Minute

	stageLoad = "load config"
)

// Fleet holds what the Fleet API client needs.
type Fleet struct {
	Username    string
	Password    string
	AgentPolicy string
	Description string
}

// Descriptor is the validated in-memory form of one deployment's
// configuration. All fields except the fingerprint are fixed at load time.
type Descriptor struct {
	Name                string
	DashboardServerName string
	DashboardPort       int
	DashboardURL        string
	SearchEngineURL     string
	EngineVersion       string
	Fleet               Fleet
	BootstrapTimeout    time.Duration

	// Source is the configuration file the descriptor was loaded from.
	Source string
	// DefaultedSearchEngine is set when SearchEngineURL came from
	// DefaultElasticsearchURL rather than the file.
	DefaultedSearchEngine bool

	fingerprint string
}

// DeployDir returns <outputDir>/<name>.
func (d *Descriptor) DeployDir(outputDir string) string {
	return filepath.Join(outputDir, d.Name)
}

// TrustAnchorPath returns the CA certificate path inside the deployment
// directory. It is only meaningful once the directory has been materialized.
func (d *Descriptor) TrustAnchorPath(outputDir string) string {
	return TrustAnchor(d.DeployDir(outputDir))
}

// TrustAnchor returns the CA certificate path below a deployment directory.
func TrustAnchor(deployDir string) string {
	return filepath.Join(deployDir, "tls", "certs", "ca", "ca.crt")
}

// Fingerprint returns the CA fingerprint and whether it has been set.
func (d *Descriptor) Fingerprint() (string, bool) {
	return d.fingerprint, d.fingerprint != ""
}

// SetFingerprint records the CA fingerprint. It can be set once, to a
// non-empty value.
func (d *Descriptor) SetFingerprint(fp string) error {
	if fp == "" {
		return errors.New("fingerprint must not be empty")
	}
	if d.fingerprint != "" {
		return errors.Newf("fingerprint already set for stack %s", d.Name)
	}
	d.fingerprint = fp
	return nil
}

// Load reads the configuration file at path, parses it and validates it.
func Load(path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		if err == nil {
			err = errors.Newf("%s is not a regular file", path)
		}
		return nil, errs.New(stageLoad, path, errs.ErrConfigNotFound, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(stageLoad, path, errs.ErrConfigNotFound, err)
	}
	return LoadBytes(data, path)
}

// LoadBytes parses and validates a configuration from raw YAML bytes.
// The source parameter is used for error messages and Descriptor.Source.
func LoadBytes(data []byte, source string) (*Descriptor, error) {
	var doc types.Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errs.Invalid(source, errs.FieldProblem{Field: "(document)", Reason: "YAML parse error: " + err.Error()})
	}

	if problems := Validate(&doc); len(problems) > 0 {
		return nil, errs.Invalid(source, problems...)
	}

	d := &Descriptor{
		Name:                doc.Stack.Name,
		DashboardServerName: doc.Stack.Kibana.ServerName,
		DashboardPort:       doc.Stack.Kibana.Port,
		DashboardURL:        doc.Stack.Kibana.URL,
		SearchEngineURL:     doc.Stack.Elasticsearch.Host,
		EngineVersion:       doc.Stack.Version,
		Fleet: Fleet{
			Username:    doc.Stack.Fleet.Username,
			Password:    doc.Stack.Fleet.Password,
			AgentPolicy: doc.Stack.Fleet.AgentPolicy,
			Description: doc.Stack.Fleet.Description,
		},
		BootstrapTimeout: DefaultBootstrapTimeout,
		Source:           source,
	}
	if d.DashboardURL == "" {
		d.DashboardURL = fmt.Sprintf("http://localhost:%d", d.DashboardPort)
	}
	if d.SearchEngineURL == "" {
		d.SearchEngineURL = DefaultElasticsearchURL
		d.DefaultedSearchEngine = true
		log.L().Info("stack.elasticsearch.host not set, using compatibility default",
			zap.String("source", source),
			zap.String("url", DefaultElasticsearchURL))
	}
	if d.Fleet.Username == "" {
		d.Fleet.Username = DefaultFleetUsername
	}
	if d.Fleet.AgentPolicy == "" {
		d.Fleet.AgentPolicy = DefaultAgentPolicy
	}
	if doc.Stack.Bootstrap.Timeout != "" {
		// Already checked by Validate.
		d.BootstrapTimeout, _ = time.ParseDuration(doc.Stack.Bootstrap.Timeout)
	}
	return d, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pathsegment", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
	})
	_ = v.RegisterValidation("godur", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks a parsed document and returns one problem per offending
// field, named by its dotted YAML path.
func Validate(doc *types.Document) []errs.FieldProblem {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []errs.FieldProblem{{Field: "(document)", Reason: err.Error()}}
	}
	problems := make([]errs.FieldProblem, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, errs.FieldProblem{
			Field:  fieldPath(fe.Namespace()),
			Reason: reason(fe),
		})
	}
	return problems
}

// fieldPath drops the root type name from a validator namespace:
// "Document.stack.kibana.port" becomes "stack.kibana.port".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "pathsegment":
		return fmt.Sprintf("%q must be a single directory name", fe.Value())
	case "godur":
		return fmt.Sprintf("%q is not a positive duration (e.g. 10m)", fe.Value())
	}
	return "failed " + fe.Tag() + " check"
}
