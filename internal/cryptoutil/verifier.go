package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	_ "crypto/sha512" // SHA-384 for P-384 keys
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type kmsKeyFetcher interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// scheme is the digest and KMS algorithm paired with a key type. Signer
// and verifier must agree on it.
type scheme struct {
	hash crypto.Hash
	alg  kmstypes.SigningAlgorithmSpec
}

func schemeFor(pub crypto.PublicKey) (scheme, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			return scheme{crypto.SHA256, kmstypes.SigningAlgorithmSpecEcdsaSha256}, nil
		case elliptic.P384():
			return scheme{crypto.SHA384, kmstypes.SigningAlgorithmSpecEcdsaSha384}, nil
		}
		return scheme{}, xerrors.Newf("unsupported ECDSA curve %s", key.Curve.Params().Name)
	case *rsa.PublicKey:
		return scheme{crypto.SHA256, kmstypes.SigningAlgorithmSpecRsassaPssSha256}, nil
	}
	return scheme{}, xerrors.Newf("unsupported public key type %T", pub)
}

func (s scheme) digest(message []byte) []byte {
	h := s.hash.New()
	h.Write(message)
	return h.Sum(nil)
}

// KMSVerifier checks signatures locally against the public half of a KMS
// asymmetric key. The key is fetched once and cached.
type KMSVerifier struct {
	client kmsKeyFetcher
	keyARN string

	// AllowPKCS1v15 accepts RSA PKCS1v15 signatures that fail PSS.
	AllowPKCS1v15 bool

	mu     sync.Mutex
	pubKey crypto.PublicKey
}

func NewKMSVerifier(client *kms.Client, keyARN string) *KMSVerifier {
	return &KMSVerifier{client: client, keyARN: keyARN}
}

func (v *KMSVerifier) KeyID() string { return v.keyARN }

// VerifyBundle checks a detached bundle signature over the bundle's hex
// digest.
func (v *KMSVerifier) VerifyBundle(ctx context.Context, bundleHash string, signature []byte) error {
	if len(signature) == 0 {
		return xerrors.Newf("bundle %s: empty signature", bundleHash)
	}
	return xerrors.Wrapf(v.VerifySignature(ctx, []byte(bundleHash), signature), "bundle %s", bundleHash)
}

// PublicKey returns the cached key, fetching it from KMS on first use.
// Failed fetches are not cached.
func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pubKey != nil {
		return v.pubKey, nil
	}
	if v.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := v.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(v.keyARN)})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has usage %s, want SIGN_VERIFY", v.keyARN, out.KeyUsage)
	}
	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key")
	}
	v.pubKey = pub
	return pub, nil
}

// VerifySignature verifies message locally. ECDSA P-256 and RSA use
// SHA-256, P-384 uses SHA-384, and RSA signatures must be PSS unless
// AllowPKCS1v15 is set.
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}
	s, err := schemeFor(pub)
	if err != nil {
		return err
	}
	digest := s.digest(message)

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return xerrors.Newf("ecdsa %s signature does not verify", key.Curve.Params().Name)
		}
		return nil
	case *rsa.PublicKey:
		err := rsa.VerifyPSS(key, s.hash, digest, signature, nil)
		if err != nil && v.AllowPKCS1v15 {
			err = rsa.VerifyPKCS1v15(key, s.hash, digest, signature)
		}
		return xerrors.Wrap(err, "rsa signature does not verify")
	}
	return nil
}
