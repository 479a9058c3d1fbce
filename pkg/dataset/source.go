package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by sources when the named payload does not exist.
var ErrNotFound = errors.New("dataset payload not found")

// ErrUnsupportedLocation is returned for locations no source can serve.
var ErrUnsupportedLocation = errors.New("unsupported dataset location")

// Source opens named payloads (the main dataset and per-key detail blobs)
// relative to one base location.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// URL describes where name is fetched from, for error messages.
	URL(name string) string
}

// FetchError reports a failed fetch with the failing URL and status.
type FetchError struct {
	URL    string
	Status string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Status, e.Err)
	}

	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FileSource reads payloads from a local directory.
type FileSource struct {
	Dir string
}

// Open opens name under the source directory.
func (s FileSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.URL(name))
	if err != nil {
		status := "open failed"
		if errors.Is(err, os.ErrNotExist) {
			status = "not found"
			err = errors.Join(ErrNotFound, err)
		}

		return nil, &FetchError{URL: s.URL(name), Status: status, Err: err}
	}

	return f, nil
}

// URL returns the file path for name.
func (s FileSource) URL(name string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(name))
}

// HTTPSource fetches payloads relative to a base URL.
type HTTPSource struct {
	Base   *url.URL
	Client *http.Client
}

// Open issues a GET for name relative to the base URL.
func (s HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	target := s.URL(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: target, Status: "bad request", Err: err}
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Status: "request failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()

		var cause error
		if resp.StatusCode == http.StatusNotFound {
			cause = ErrNotFound
		}

		return nil, &FetchError{URL: target, Status: resp.Status, Err: errors.Join(cause, closeErr)}
	}

	return resp.Body, nil
}

// URL resolves name against the base URL.
func (s HTTPSource) URL(name string) string {
	return s.Base.JoinPath(name).String()
}

// S3Client captures the subset of the AWS SDK client used by S3Source.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads payloads from an S3-compatible bucket under a key prefix.
type S3Source struct {
	Client S3Client
	Bucket string
	Prefix string
}

// Open downloads the object for name.
func (s S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)

	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.Bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, &FetchError{URL: s.URL(name), Status: "not found", Err: errors.Join(ErrNotFound, err)}
		}

		return nil, &FetchError{URL: s.URL(name), Status: "get object failed", Err: err}
	}

	return out.Body, nil
}

// URL returns the s3:// URL for name.
func (s S3Source) URL(name string) string {
	return "s3://" + s.Bucket + "/" + s.key(name)
}

func (s S3Source) key(name string) string {
	if s.Prefix == "" {
		return name
	}

	return path.Join(s.Prefix, name)
}

// S3Options configures the S3 client built for s3:// locations.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client from static options. Without keys the
// client signs requests anonymously, which suits public buckets.
func NewS3Client(opts S3Options) *s3.Client {
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}

	if opts.AccessKeyID != "" {
		creds = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     opts.AccessKeyID,
					SecretAccessKey: opts.SecretAccessKey,
					Source:          "trendscope-config",
				}, nil
			}))
	}

	s3Opts := s3.Options{
		Region:      opts.Region,
		Credentials: creds,
	}

	if opts.Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(opts.Endpoint)
		s3Opts.UsePathStyle = true
	}

	return s3.New(s3Opts)
}

// Location is a parsed dataset location: a source plus the dataset name in it.
type Location struct {
	Source Source
	Name   string
}

// ParseLocation resolves a file path, http(s) URL or s3://bucket/key into a
// source rooted at the containing directory and the dataset's name.
// newS3 is only called for s3:// locations and may be nil otherwise.
func ParseLocation(loc string, httpClient *http.Client, newS3 func() S3Client) (Location, error) {
	switch {
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		parsed, err := url.Parse(loc)
		if err != nil {
			return Location{}, fmt.Errorf("%w: %w", ErrUnsupportedLocation, err)
		}

		dir, name := path.Split(parsed.Path)
		base := *parsed
		base.Path = dir

		return Location{Source: HTTPSource{Base: &base, Client: httpClient}, Name: name}, nil

	case strings.HasPrefix(loc, "s3://"):
		if newS3 == nil {
			return Location{}, fmt.Errorf("%w: no S3 client for %s", ErrUnsupportedLocation, loc)
		}

		bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedLocation, loc)
		}

		prefix, name := path.Split(key)

		return Location{
			Source: S3Source{Client: newS3(), Bucket: bucket, Prefix: strings.TrimSuffix(prefix, "/")},
			Name:   name,
		}, nil

	case strings.Contains(loc, "://"):
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedLocation, loc)

	default:
		return Location{Source: FileSource{Dir: filepath.Dir(loc)}, Name: filepath.Base(loc)}, nil
	}
}
