package content

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type ssmPutter interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BundleSigner produces detached bundle signatures.
type BundleSigner interface {
	SignBundle(ctx context.Context, bundleHash string) ([]byte, error)
	KeyID() string
}

// PublisherOptions mirror LoaderOptions so both sides agree on where
// bundles live.
type PublisherOptions struct {
	Logger   log.Logger
	SSMParam string
	S3Bucket string
	S3Prefix string

	// Signer, when set, uploads {hash}.tar.gz.sig next to the bundle.
	Signer BundleSigner

	AWSConfig *aws.Config
}

// Publisher uploads bundles and then points the SSM parameter at them.
// Watchers pick up the new hash on their next poll.
type Publisher struct {
	opts    PublisherOptions
	params  ssmPutter
	objects s3Putter
	logger  log.Logger
}

func NewPublisher(ctx context.Context, opts PublisherOptions) (*Publisher, error) {
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
	return &Publisher{
		opts:    opts,
		params:  ssm.NewFromConfig(awsCfg),
		objects: s3.NewFromConfig(awsCfg),
		logger:  opts.Logger,
	}, nil
}

// upload is one object written by Publish.
type upload struct {
	key         string
	body        []byte
	contentType string
}

// Publish signs and uploads the bundle, then updates the SSM parameter.
// Servers never see a hash whose objects are not all in place.
func (p *Publisher) Publish(ctx context.Context, hash string, bundle []byte) error {
	uploads := []upload{{BundleKey(p.opts.S3Prefix, hash), bundle, "application/gzip"}}
	if p.opts.Signer != nil {
		sig, err := p.opts.Signer.SignBundle(ctx, hash)
		if err != nil {
			return xerrors.Wrap(err, "sign bundle")
		}
		uploads = append(uploads, upload{SignatureKey(p.opts.S3Prefix, hash), sig, "application/octet-stream"})
	}

	for _, u := range uploads {
		_, err := p.objects.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(p.opts.S3Bucket),
			Key:           aws.String(u.key),
			Body:          bytes.NewReader(u.body),
			ContentLength: aws.Int64(int64(len(u.body))),
			ContentType:   aws.String(u.contentType),
		})
		if err != nil {
			return xerrors.Wrapf(err, "put %s", s3URI(p.opts.S3Bucket, u.key))
		}
	}

	_, err := p.params.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(p.opts.SSMParam),
		Value:     aws.String(hash),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put SSM parameter %s", p.opts.SSMParam)
	}

	p.logger.Info(ctx, "published content bundle",
		"uri", s3URI(p.opts.S3Bucket, uploads[0].key),
		"hash", hash,
		"bytes", len(bundle),
		"signed", len(uploads) > 1,
	)
	return nil
}
