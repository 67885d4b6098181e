package content

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-book/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

// maxSignatureSize bounds the detached signature object.
const maxSignatureSize int64 = 16 << 10

type ssmGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type s3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BundleVerifier checks detached bundle signatures.
type BundleVerifier interface {
	VerifyBundle(ctx context.Context, bundleHash string, signature []byte) error
	KeyID() string
}

// BundleKey is the S3 key of the bundle with the given hash.
func BundleKey(prefix, hash string) string {
	return path.Join(strings.Trim(prefix, "/"), hash+".tar.gz")
}

// SignatureKey is the S3 key of a bundle's detached signature.
func SignatureKey(prefix, hash string) string {
	return BundleKey(prefix, hash) + ".sig"
}

func s3URI(bucket, key string) string { return "s3://" + bucket + "/" + key }

func awsConfigOrDefault(ctx context.Context, c *aws.Config) (aws.Config, error) {
	if c != nil {
		return *c, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	return cfg, xerrors.Wrap(err, "load AWS config")
}

type LoaderOptions struct {
	Logger log.Logger

	// SSMParam holds the hash of the current bundle.
	SSMParam string

	// Bundles live at s3://{S3Bucket}/{S3Prefix}/{hash}.tar.gz.
	S3Bucket string
	S3Prefix string

	// Verifier, when set, requires a valid {hash}.tar.gz.sig next to the
	// bundle before it is extracted.
	Verifier BundleVerifier

	// AWSConfig defaults to config.LoadDefaultConfig.
	AWSConfig *aws.Config
}

// Loader fetches published bundles: SSM names the current hash, S3 holds
// the bytes.
type Loader struct {
	opts    LoaderOptions
	params  ssmGetter
	objects s3Getter
	logger  log.Logger
}

func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	switch {
	case opts.SSMParam == "":
		return nil, xerrors.New("SSMParam is required")
	case opts.S3Bucket == "":
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	awsCfg, err := awsConfigOrDefault(ctx, opts.AWSConfig)
	if err != nil {
		return nil, err
	}
	return &Loader{
		opts:    opts,
		params:  ssm.NewFromConfig(awsCfg),
		objects: s3.NewFromConfig(awsCfg),
		logger:  opts.Logger,
	}, nil
}

// FetchCurrentBundleHash reads the published hash from SSM.
func (l *Loader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.params.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	hash := strings.ToLower(strings.TrimSpace(aws.ToString(out.Parameter.Value)))
	if !cryptoutil.IsSHA256Hex(hash) {
		return "", xerrors.Newf("SSM parameter %s does not hold a bundle hash: %q", l.opts.SSMParam, hash)
	}
	return hash, nil
}

// fetch reads one object, refusing anything over limit.
func (l *Loader) fetch(ctx context.Context, key string, limit int64) ([]byte, string, error) {
	uri := s3URI(l.opts.S3Bucket, key)
	out, err := l.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get %s", uri)
	}
	defer out.Body.Close()

	if n := aws.ToInt64(out.ContentLength); n > limit {
		return nil, "", tooLarge(uri, n, limit)
	}
	data, hash, err := readHashed(out.Body, limit)
	return data, hash, xerrors.Wrapf(err, "read %s", uri)
}

// Download fetches a bundle and checks it hashes to hash.
func (l *Loader) Download(ctx context.Context, hash string) ([]byte, error) {
	key := BundleKey(l.opts.S3Prefix, hash)
	start := time.Now()
	data, got, err := l.fetch(ctx, key, bundleLimits.archive)
	if err != nil {
		return nil, xerrors.Wrap(err, "download bundle")
	}
	if !cryptoutil.HashEqual(got, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, got)
	}
	l.logger.Debug(ctx, "downloaded content bundle",
		"key", key,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

// verify checks the bundle's detached signature and returns the signing
// key, or "" when no verifier is configured.
func (l *Loader) verify(ctx context.Context, hash string) (string, error) {
	v := l.opts.Verifier
	if v == nil {
		return "", nil
	}
	sig, _, err := l.fetch(ctx, SignatureKey(l.opts.S3Prefix, hash), maxSignatureSize)
	var nsk *s3types.NoSuchKey
	switch {
	case errors.As(err, &nsk):
		return "", xerrors.Newf("bundle %s is not signed", hash)
	case err != nil:
		return "", err
	}
	if err := v.VerifyBundle(ctx, hash, sig); err != nil {
		return "", xerrors.Wrap(err, "verify bundle signature")
	}
	return v.KeyID(), nil
}

// Load fetches the bundle SSM currently points at.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash fetches, verifies and extracts the bundle with the given hash.
// The signature is checked before the archive is downloaded.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	signedBy, err := l.verify(ctx, hash)
	if err != nil {
		return nil, err
	}
	data, err := l.Download(ctx, hash)
	if err != nil {
		return nil, err
	}
	fsys, _, err := OpenBundle(data, hash)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(fsys, hash, SourceS3)
	snap.Meta.SignedBy = signedBy
	if err := attachManifest(snap); err != nil {
		// ValidateSnapshot decides whether a manifest is required
		l.logger.Warn(ctx, "bundle has no usable manifest", "hash", ShortHash(hash), "error", err.Error())
	}
	l.logger.Info(ctx, "loaded content bundle",
		"hash", ShortHash(hash),
		"version", snap.Meta.Version,
		"signed", signedBy != "",
	)
	return snap, nil
}

// ReadBundle opens a bundle file written by the builder. An empty
// expectedHash accepts whatever the bundle hashes to.
func ReadBundle(r io.Reader, expectedHash string) (*Snapshot, error) {
	data, _, err := readHashed(r, bundleLimits.archive)
	if err != nil {
		return nil, xerrors.Wrap(err, "read bundle")
	}
	fsys, hash, err := OpenBundle(data, expectedHash)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(fsys, hash, SourceBundle)
	_ = attachManifest(snap)
	return snap, nil
}

func newSnapshot(fsys fs.FS, hash string, src Source) *Snapshot {
	now := time.Now().UTC()
	return &Snapshot{
		FS:       fsys,
		Meta:     Meta{SHA256: hash, Source: src, VerifiedAt: now},
		LoadedAt: now,
	}
}

// attachManifest fills the snapshot's manifest and the metadata it
// carries.
func attachManifest(snap *Snapshot) error {
	m, err := LoadManifest(snap.FS)
	if err != nil {
		return err
	}
	snap.Manifest = m
	snap.Meta.Version = m.Version
	snap.Meta.BuiltAt = m.BuiltAt
	return nil
}
