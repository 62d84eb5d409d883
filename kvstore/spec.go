package kvstore

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Driver names accepted in a kvstore spec.
const (
	DriverFile   = "file"
	DriverMemory = "memory"
	DriverS3     = "s3"
	DriverGCS    = "gcs"
)

// ErrInvalidSpec indicates a kvstore spec that cannot be decoded.
var ErrInvalidSpec = errors.New("invalid kvstore spec")

// Spec is the decoded "kvstore" member of a zarr spec.
//
// JSON form:
//
//	{"driver": "file", "path": "/data/velocity"}
//	{"driver": "gcs", "bucket": "survey", "path": "velocity"}
//	{"driver": "s3", "bucket": "survey", "path": "velocity", "aws_region": "us-east-1"}
//
// The URL forms "file:///data/velocity", "gs://survey/velocity",
// "s3://survey/velocity" and "memory://velocity" are also accepted.
type Spec struct {
	Driver   string
	Path     string
	Bucket   string
	Endpoint string
	Region   string
}

// ParseSpec decodes a kvstore spec given as a JSON object or URL string.
func ParseSpec(v any) (Spec, error) {
	switch t := v.(type) {
	case string:
		return parseURL(t)
	case map[string]any:
		return parseObject(t)
	case nil:
		return Spec{}, fmt.Errorf("%w: missing", ErrInvalidSpec)
	default:
		return Spec{}, fmt.Errorf("%w: unexpected %T", ErrInvalidSpec, v)
	}
}

func parseObject(obj map[string]any) (Spec, error) {
	var s Spec
	fields := []struct {
		key string
		dst *string
	}{
		{"driver", &s.Driver},
		{"path", &s.Path},
		{"bucket", &s.Bucket},
		{"endpoint", &s.Endpoint},
		{"aws_region", &s.Region},
	}
	for _, f := range fields {
		raw, ok := obj[f.key]
		if !ok || raw == nil {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			return Spec{}, fmt.Errorf("%w: %q must be a string", ErrInvalidSpec, f.key)
		}
		*f.dst = str
	}
	if s.Driver == "" {
		return Spec{}, fmt.Errorf("%w: driver is required", ErrInvalidSpec)
	}
	return s, s.validate()
}

func parseURL(raw string) (Spec, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	var s Spec
	switch u.Scheme {
	case "file":
		s = Spec{Driver: DriverFile, Path: u.Host + u.Path}
	case "memory":
		s = Spec{Driver: DriverMemory, Path: strings.TrimPrefix(u.Host+u.Path, "/")}
	case "gs":
		s = Spec{Driver: DriverGCS, Bucket: u.Host, Path: strings.TrimPrefix(u.Path, "/")}
	case "s3":
		s = Spec{Driver: DriverS3, Bucket: u.Host, Path: strings.TrimPrefix(u.Path, "/")}
	default:
		return Spec{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSpec, u.Scheme)
	}
	return s, s.validate()
}

func (s Spec) validate() error {
	if s.IsCloud() && s.Bucket == "" {
		return fmt.Errorf("%w: %s driver requires a bucket", ErrInvalidSpec, s.Driver)
	}
	return nil
}

// IsCloud reports whether the driver is an object store addressed by bucket.
func (s Spec) IsCloud() bool {
	return s.Driver == DriverGCS || s.Driver == DriverS3
}

// ToJSON returns the JSON object form of the spec.
func (s Spec) ToJSON() map[string]any {
	out := map[string]any{"driver": s.Driver}
	if s.Path != "" {
		out["path"] = s.Path
	}
	if s.Bucket != "" {
		out["bucket"] = s.Bucket
	}
	if s.Endpoint != "" {
		out["endpoint"] = s.Endpoint
	}
	if s.Region != "" {
		out["aws_region"] = s.Region
	}
	return out
}

// Name returns the last non-empty component of the path.
func (s Spec) Name() string {
	trimmed := strings.TrimRight(s.Path, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}

// String renders the spec in URL form.
func (s Spec) String() string {
	switch s.Driver {
	case DriverGCS:
		return "gs://" + s.Bucket + "/" + s.Path
	case DriverS3:
		return "s3://" + s.Bucket + "/" + s.Path
	default:
		return s.Driver + "://" + s.Path
	}
}
