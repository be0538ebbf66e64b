// Package utils provides shared concurrency, recovery and vector helpers
// used across the resolution pipeline.
package utils
