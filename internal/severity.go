// Package internal re-exports failure.Severity so every stage's
// ClassifiedError implementation can satisfy pkg/failure.ClassifiedError
// without importing pkg/failure directly from deep inside internal/*.
package internal

import "github.com/rohmanhakim/docs-crawler/pkg/failure"

type Severity = failure.Severity

const (
	SeverityFatal       = failure.SeverityFatal
	SeverityRecoverable = failure.SeverityRecoverable
)
