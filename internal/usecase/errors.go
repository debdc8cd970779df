package usecase

import (
	"errors"
	"fmt"
	"strings"

	"PowerDesk/internal/domain/models"
)

// ErrInvalidUpload wraps parse failures of an uploaded file. ErrUpstream
// marks failures of the language model provider.
var (
	ErrInvalidKind   = errors.New("unknown dataset kind")
	ErrKindMismatch  = errors.New("file format does not match dataset kind")
	ErrInvalidUpload = errors.New("invalid upload")
	ErrMissingInput  = errors.New("missing input datasets")
	ErrUpstream      = errors.New("language model request failed")
	ErrInvalidQuery  = errors.New("invalid query")
)

// MissingInputError names the dataset kinds an analysis needs.
type MissingInputError struct {
	Analysis models.AnalysisKind
	Required []models.DatasetKind
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s analysis requires %s data", e.Analysis, strings.Join(e.RequiredKinds(), ", "))
}

func (e *MissingInputError) Is(target error) bool { return target == ErrMissingInput }

// RequiredKinds returns Required as strings.
func (e *MissingInputError) RequiredKinds() []string {
	out := make([]string, len(e.Required))
	for i, k := range e.Required {
		out[i] = string(k)
	}
	return out
}

func missing(a models.AnalysisKind, kinds ...models.DatasetKind) error {
	return &MissingInputError{Analysis: a, Required: kinds}
}
