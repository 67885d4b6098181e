// Package cryptoutil signs and verifies published site bundles.
//
// A bundle is addressed by the hex SHA-256 of its tar.gz bytes. The
// builder signs that hex string with a KMS asymmetric key; servers verify
// the detached signature locally with the cached public half. Supported
// keys are ECDSA P-256, ECDSA P-384 and RSA (PSS).
package cryptoutil
