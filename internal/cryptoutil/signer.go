package cryptoutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type kmsSignAPI interface {
	kmsKeyFetcher
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs bundle digests with a KMS asymmetric key.
type KMSSigner struct {
	client   kmsSignAPI
	verifier *KMSVerifier
}

// NewKMSSigner returns a signer for keyARN.
func NewKMSSigner(client *kms.Client, keyARN string) *KMSSigner {
	return newKMSSigner(client, keyARN)
}

func newKMSSigner(client kmsSignAPI, keyARN string) *KMSSigner {
	return &KMSSigner{
		client:   client,
		verifier: &KMSVerifier{client: client, keyARN: keyARN},
	}
}

// KeyID returns the signing key.
func (s *KMSSigner) KeyID() string { return s.verifier.keyARN }

// SignBundle signs the hex digest of a bundle archive. The signature is
// verified against the key's public half before it is returned.
func (s *KMSSigner) SignBundle(ctx context.Context, bundleHash string) ([]byte, error) {
	pub, err := s.verifier.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	sch, err := schemeFor(pub)
	if err != nil {
		return nil, err
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.verifier.keyARN),
		Message:          []byte(bundleHash),
		MessageType:      kmstypes.MessageTypeRaw,
		SigningAlgorithm: sch.alg,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms sign")
	}
	if len(out.Signature) == 0 {
		return nil, xerrors.New("kms sign returned an empty signature")
	}

	if err := s.verifier.VerifyBundle(ctx, bundleHash, out.Signature); err != nil {
		return nil, xerrors.Wrap(err, "verify fresh signature")
	}
	return out.Signature, nil
}
