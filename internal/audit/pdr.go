// Package audit provides PDR (Process Decision Record) writing for gapforge.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/gapforge/internal/models"
)

// Decision actions.
const (
	ActionApproval    = "approval"
	ActionAcquisition = "acquisition"
	ActionBudget      = "budget"
	ActionReview      = "review"
)

// Writer is the persistence the PDR writer needs.
type Writer interface {
	WritePDR(ctx context.Context, action, inputsHash, outcome, capability, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store Writer
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s Writer) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a decision. inputs is hashed, not stored.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs interface{}, outcome, capability, details string) (*models.PDREntry, error) {
	return w.store.WritePDR(ctx, action, HashInputs(inputs), outcome, capability, details)
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
