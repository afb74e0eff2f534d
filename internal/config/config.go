// Package config decodes the health-multi configuration file: YAML or
// JSON (JSON is valid YAML 1.2, so one decoder path handles both),
// ${NAME} environment placeholder substitution, and struct validation
// with JSON-pointer-style error paths.
package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// FileConfig is the raw decoded shape of the config file, pre-validation
// and pre-substitution. Durations are still strings at this stage.
type FileConfig struct {
	Interval       string            `yaml:"interval" validate:"omitempty,duration"`
	Timeout        string            `yaml:"timeout" validate:"omitempty,duration"`
	Retries        *int              `yaml:"retries" validate:"omitempty,gte=0"`
	Concurrency    *int              `yaml:"concurrency" validate:"omitempty,gte=0"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Headers        map[string]string `yaml:"headers"`
	Proxy          string            `yaml:"proxy"`
	Insecure       bool              `yaml:"insecure"`
	MissingStatus  string            `yaml:"missing_status" validate:"omitempty,oneof=degraded down"`
	Services       []FileService     `yaml:"services" validate:"required,min=1,dive"`
}

// FileService is one service entry in the raw decoded shape.
type FileService struct {
	Name         string            `yaml:"name" validate:"required"`
	URL          string            `yaml:"url" validate:"required,httpurl"`
	ExpectStatus string            `yaml:"expect_status" validate:"omitempty,oneof=ok degraded down"`
	Tags         []string          `yaml:"tags"`
	Headers      map[string]string `yaml:"headers"`
	Proxy        string            `yaml:"proxy"`
	Timeout      string            `yaml:"timeout" validate:"omitempty,duration"`
}

// ValidationError is one struct-validation failure, addressed by a
// JSON-pointer-style path into the decoded document (e.g. "/services/2/url").
type ValidationError struct {
	Pointer string
	Message string
}

// ValidationErrors is every violation found in a single validation pass.
// Validation never fails fast: every issue is collected before reporting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = fmt.Sprintf("%s: %s", v.Pointer, v.Message)
	}
	return strings.Join(msgs, "; ")
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var validatorInstance = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := statusx.ParseDuration(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
	})
	return v
}

// Load reads, decodes, substitutes, and validates the config file at path,
// returning the runtime Parameters and Service list it describes. Any
// decode failure, unresolved placeholder, or validation violation is
// returned as a single probe.Error of kind KindUsage.
func Load(path string) (probe.Parameters, []probe.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("reading config file %q: %v", path, err))
	}
	return Decode(data)
}

// Decode runs the same pipeline as Load against an in-memory document,
// useful for tests and for callers that already have the bytes (e.g. a
// config fetched from a remote source).
func Decode(data []byte) (probe.Parameters, []probe.Service, error) {
	var raw FileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("parsing config: %v", err))
	}

	if err := substitute(&raw, os.LookupEnv); err != nil {
		return probe.Parameters{}, nil, err
	}

	if err := validateConfig(&raw); err != nil {
		return probe.Parameters{}, nil, err
	}

	return materialize(raw)
}

// substitute replaces every ${NAME} placeholder in raw's string leaves
// with the named environment variable. Any placeholder whose name has no
// environment value is collected and returned as a single usage error
// enumerating every unresolved name.
func substitute(raw *FileConfig, lookup func(string) (string, bool)) error {
	var missing []string
	resolve := func(s string) string {
		return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
			name := placeholderPattern.FindStringSubmatch(m)[1]
			if v, ok := lookup(name); ok {
				return v
			}
			missing = append(missing, name)
			return m
		})
	}
	resolveMap := func(m map[string]string) {
		for k, v := range m {
			m[k] = resolve(v)
		}
	}

	raw.Interval = resolve(raw.Interval)
	raw.Timeout = resolve(raw.Timeout)
	raw.Proxy = resolve(raw.Proxy)
	raw.MissingStatus = resolve(raw.MissingStatus)
	resolveMap(raw.DefaultHeaders)
	resolveMap(raw.Headers)
	for i := range raw.Services {
		svc := &raw.Services[i]
		svc.Name = resolve(svc.Name)
		svc.URL = resolve(svc.URL)
		svc.ExpectStatus = resolve(svc.ExpectStatus)
		svc.Proxy = resolve(svc.Proxy)
		svc.Timeout = resolve(svc.Timeout)
		for j, tag := range svc.Tags {
			svc.Tags[j] = resolve(tag)
		}
		resolveMap(svc.Headers)
	}

	if len(missing) > 0 {
		return probe.NewUsageError(fmt.Sprintf("unresolved environment placeholder(s): %s", strings.Join(missing, ", ")))
	}
	return nil
}

// validateConfig runs struct validation and translates every violation
// into a JSON-pointer-style path before wrapping the collected set as a
// single usage error.
func validateConfig(raw *FileConfig) error {
	var verrs ValidationErrors

	if err := validatorInstance.Struct(raw); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return probe.NewUsageError(fmt.Sprintf("config validation: %v", err))
		}
		for _, fe := range fieldErrs {
			verrs = append(verrs, ValidationError{
				Pointer: pointerFromNamespace(fe.Namespace()),
				Message: messageFor(fe),
			})
		}
	}

	verrs = append(verrs, duplicateNameErrors(raw.Services)...)
	if len(verrs) == 0 {
		return nil
	}
	return probe.NewUsageError(verrs.Error())
}

// duplicateNameErrors returns one ValidationError per service entry whose
// name repeats an earlier entry's. Orchestrator/store/backoff state is
// keyed by service name, so a duplicate would silently collapse two
// services into one unless caught here.
func duplicateNameErrors(services []FileService) ValidationErrors {
	var verrs ValidationErrors
	seen := make(map[string]bool, len(services))
	for i, svc := range services {
		if svc.Name == "" || !seen[svc.Name] {
			seen[svc.Name] = true
			continue
		}
		verrs = append(verrs, ValidationError{
			Pointer: fmt.Sprintf("/services/%d/name", i),
			Message: fmt.Sprintf("duplicates an earlier service name %q", svc.Name),
		})
	}
	return verrs
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "duration":
		return `must match ^\d+(ms|s|m)$`
	case "httpurl":
		return "must be an http:// or https:// URL"
	case "min":
		return fmt.Sprintf("must have at least %s element(s)", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// pointerFromNamespace converts a validator namespace such as
// "FileConfig.services[2].url" into the JSON-pointer-style path
// "/services/2/url". The root type name is dropped; RegisterTagNameFunc
// ensures every remaining segment already matches the document's own
// field names, so no case conversion is applied.
func pointerFromNamespace(ns string) string {
	rest := ns
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		rest = ns[i+1:]
	} else {
		rest = ""
	}
	rest = strings.ReplaceAll(rest, "[", ".")
	rest = strings.ReplaceAll(rest, "]", "")
	if rest == "" {
		return "/"
	}
	return "/" + strings.ReplaceAll(rest, ".", "/")
}

// materialize converts a substituted, validated FileConfig into the
// runtime Parameters and Service list the orchestrator consumes.
func materialize(raw FileConfig) (probe.Parameters, []probe.Service, error) {
	params := probe.DefaultParameters()

	if raw.Interval != "" {
		d, err := statusx.ParseDuration(raw.Interval)
		if err != nil {
			return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("interval: %v", err))
		}
		params.Interval = d
	}
	if raw.Timeout != "" {
		d, err := statusx.ParseDuration(raw.Timeout)
		if err != nil {
			return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("timeout: %v", err))
		}
		params.Timeout = d
	}
	if raw.Retries != nil {
		params.Retries = *raw.Retries
	}
	if raw.Concurrency != nil {
		params.Concurrency = *raw.Concurrency
	}
	params.Headers = mergeHeaders(raw.DefaultHeaders, raw.Headers)
	params.Proxy = raw.Proxy
	params.Insecure = raw.Insecure
	if raw.MissingStatus != "" {
		policy, _ := statusx.ParseMissingStatusPolicy(raw.MissingStatus)
		params.MissingStatusPolicy = policy
	}

	services := make([]probe.Service, 0, len(raw.Services))
	for _, fs := range raw.Services {
		svc := probe.Service{
			Name:         fs.Name,
			URL:          fs.URL,
			ExpectStatus: fs.ExpectStatus,
			Tags:         fs.Tags,
			Headers:      fs.Headers,
			Proxy:        fs.Proxy,
		}
		if fs.Timeout != "" {
			d, err := statusx.ParseDuration(fs.Timeout)
			if err != nil {
				return probe.Parameters{}, nil, probe.NewUsageError(fmt.Sprintf("services[%s].timeout: %v", fs.Name, err))
			}
			svc.Timeout = d
		}
		services = append(services, svc)
	}

	return params, services, nil
}

func mergeHeaders(defaults, overrides map[string]string) map[string]string {
	if len(defaults) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
