package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

const testKeyARN = "arn:aws:kms:us-east-2:000000000000:key/test-key-id"

func generateTestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

func generateTestECKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("generate ECDSA key: %v", err)
	}
	return key
}

// newTestVerifier creates a KMSVerifier with a pre-cached public key.
func newTestVerifier(pub crypto.PublicKey) *KMSVerifier {
	return &KMSVerifier{keyARN: testKeyARN, pubKey: pub}
}

// signLocal produces the signature KMS would return for message.
func signLocal(t *testing.T, key crypto.Signer, message []byte, pkcs1 bool) []byte {
	t.Helper()
	var (
		sig []byte
		err error
	)
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		var digest []byte
		if k.Curve == elliptic.P384() {
			d := sha512.Sum384(message)
			digest = d[:]
		} else {
			d := sha256.Sum256(message)
			digest = d[:]
		}
		sig, err = ecdsa.SignASN1(rand.Reader, k, digest)
	case *rsa.PrivateKey:
		d := sha256.Sum256(message)
		if pkcs1 {
			sig, err = rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, d[:])
		} else {
			sig, err = rsa.SignPSS(rand.Reader, k, crypto.SHA256, d[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		}
	default:
		t.Fatalf("unsupported key %T", key)
	}
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestVerifySignature(t *testing.T) {
	p256 := generateTestECKey(t, elliptic.P256())
	p384 := generateTestECKey(t, elliptic.P384())
	rsaKey := generateTestRSAKey(t)
	other := generateTestECKey(t, elliptic.P256())

	msg := []byte("3f2a9c")

	tests := []struct {
		name      string
		pub       crypto.PublicKey
		sig       []byte
		message   []byte
		allowPKCS bool
		wantErr   bool
	}{
		{"p256 valid", &p256.PublicKey, signLocal(t, p256, msg, false), msg, false, false},
		{"p384 valid", &p384.PublicKey, signLocal(t, p384, msg, false), msg, false, false},
		{"rsa pss valid", &rsaKey.PublicKey, signLocal(t, rsaKey, msg, false), msg, false, false},
		{"p256 wrong message", &p256.PublicKey, signLocal(t, p256, msg, false), []byte("other"), false, true},
		{"p256 wrong key", &other.PublicKey, signLocal(t, p256, msg, false), msg, false, true},
		{"rsa pkcs1 rejected by default", &rsaKey.PublicKey, signLocal(t, rsaKey, msg, true), msg, false, true},
		{"rsa pkcs1 allowed", &rsaKey.PublicKey, signLocal(t, rsaKey, msg, true), msg, true, false},
		{"empty signature", &p256.PublicKey, []byte{}, msg, false, true},
		{"unsupported key", "not-a-key", []byte("sig"), msg, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(tt.pub)
			v.AllowPKCS1v15 = tt.allowPKCS
			err := v.VerifySignature(t.Context(), tt.message, tt.sig)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySignature err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyBundle_CorruptedSignature(t *testing.T) {
	key := generateTestECKey(t, elliptic.P256())
	v := newTestVerifier(&key.PublicKey)

	sig := signLocal(t, key, []byte("abc123"), false)
	if err := v.VerifyBundle(t.Context(), "abc123", sig); err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	sig[len(sig)-1] ^= 0xff
	if err := v.VerifyBundle(t.Context(), "abc123", sig); err == nil {
		t.Fatal("expected failure for corrupted signature")
	}
	if err := v.VerifyBundle(t.Context(), "abc123", nil); err == nil {
		t.Fatal("expected failure for missing signature")
	}
}

func TestPublicKey_NilClient_FailsOnCacheMiss(t *testing.T) {
	v := &KMSVerifier{keyARN: testKeyARN}
	if _, err := v.PublicKey(t.Context()); err == nil {
		t.Fatal("expected error when client is nil and cache is empty")
	}
}

// fakeKMS signs with a local private key.
type fakeKMS struct {
	key       crypto.Signer
	usage     kmstypes.KeyUsageType
	signErr   error
	corrupt   bool
	pubCalls  int
	lastAlg   kmstypes.SigningAlgorithmSpec
	lastInput *kms.SignInput
}

func (f *fakeKMS) GetPublicKey(_ context.Context, _ *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.pubCalls++
	der, err := x509.MarshalPKIXPublicKey(f.key.Public())
	if err != nil {
		return nil, err
	}
	usage := f.usage
	if usage == "" {
		usage = kmstypes.KeyUsageTypeSignVerify
	}
	return &kms.GetPublicKeyOutput{PublicKey: der, KeyUsage: usage}, nil
}

func (f *fakeKMS) Sign(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.lastInput = in
	f.lastAlg = in.SigningAlgorithm
	if f.signErr != nil {
		return nil, f.signErr
	}
	var sig []byte
	switch k := f.key.(type) {
	case *ecdsa.PrivateKey:
		var digest []byte
		if k.Curve == elliptic.P384() {
			d := sha512.Sum384(in.Message)
			digest = d[:]
		} else {
			d := sha256.Sum256(in.Message)
			digest = d[:]
		}
		s, err := ecdsa.SignASN1(rand.Reader, k, digest)
		if err != nil {
			return nil, err
		}
		sig = s
	case *rsa.PrivateKey:
		d := sha256.Sum256(in.Message)
		s, err := rsa.SignPSS(rand.Reader, k, crypto.SHA256, d[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		if err != nil {
			return nil, err
		}
		sig = s
	}
	if f.corrupt {
		sig[len(sig)-1] ^= 0xff
	}
	return &kms.SignOutput{Signature: sig, SigningAlgorithm: in.SigningAlgorithm}, nil
}

func TestKMSSigner_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		key  crypto.Signer
		alg  kmstypes.SigningAlgorithmSpec
	}{
		{"p256", generateTestECKey(t, elliptic.P256()), kmstypes.SigningAlgorithmSpecEcdsaSha256},
		{"p384", generateTestECKey(t, elliptic.P384()), kmstypes.SigningAlgorithmSpecEcdsaSha384},
		{"rsa", generateTestRSAKey(t), kmstypes.SigningAlgorithmSpecRsassaPssSha256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeKMS{key: tt.key}
			s := newKMSSigner(fake, testKeyARN)

			hash := SHA256Hex([]byte("bundle bytes"))
			sig, err := s.SignBundle(t.Context(), hash)
			if err != nil {
				t.Fatalf("SignBundle: %v", err)
			}
			if fake.lastAlg != tt.alg {
				t.Fatalf("algorithm = %s, want %s", fake.lastAlg, tt.alg)
			}
			if fake.lastInput.MessageType != kmstypes.MessageTypeRaw {
				t.Fatalf("message type = %s", fake.lastInput.MessageType)
			}

			v := &KMSVerifier{client: fake, keyARN: testKeyARN}
			if err := v.VerifyBundle(t.Context(), hash, sig); err != nil {
				t.Fatalf("VerifyBundle: %v", err)
			}
			if err := v.VerifyBundle(t.Context(), SHA256Hex([]byte("other")), sig); err == nil {
				t.Fatal("signature must not verify for a different bundle")
			}
		})
	}
}

func TestKMSSigner_CachesPublicKey(t *testing.T) {
	fake := &fakeKMS{key: generateTestECKey(t, elliptic.P256())}
	s := newKMSSigner(fake, testKeyARN)
	for i := 0; i < 3; i++ {
		if _, err := s.SignBundle(t.Context(), "abc"); err != nil {
			t.Fatalf("SignBundle: %v", err)
		}
	}
	if fake.pubCalls != 1 {
		t.Fatalf("GetPublicKey calls = %d, want 1", fake.pubCalls)
	}
}

func TestKMSSigner_Errors(t *testing.T) {
	key := generateTestECKey(t, elliptic.P256())

	t.Run("sign error", func(t *testing.T) {
		boom := errors.New("throttled")
		s := newKMSSigner(&fakeKMS{key: key, signErr: boom}, testKeyARN)
		if _, err := s.SignBundle(t.Context(), "abc"); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want wrapped %v", err, boom)
		}
	})
	t.Run("self check fails", func(t *testing.T) {
		s := newKMSSigner(&fakeKMS{key: key, corrupt: true}, testKeyARN)
		if _, err := s.SignBundle(t.Context(), "abc"); err == nil {
			t.Fatal("expected self-check failure")
		}
	})
	t.Run("wrong key usage", func(t *testing.T) {
		s := newKMSSigner(&fakeKMS{key: key, usage: kmstypes.KeyUsageTypeEncryptDecrypt}, testKeyARN)
		if _, err := s.SignBundle(t.Context(), "abc"); err == nil {
			t.Fatal("expected key usage error")
		}
	})
}
