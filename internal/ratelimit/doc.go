// Package ratelimit throttles requests per client IP with token buckets
// held in memory.
//
// Buckets live in one process and are not shared between replicas. The
// limiter bounds how much of the site handler and the fallback proxy a
// single address can occupy; distributed floods belong to the load
// balancer or CDN in front of the site.
package ratelimit
