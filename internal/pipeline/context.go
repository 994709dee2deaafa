package pipeline

import (
	"fmt"
	"time"

	"github.com/Lllllllleong/documentverificationflow/internal/models"
	"github.com/Lllllllleong/documentverificationflow/internal/rules"
)

// runState carries the accumulating record of one run through the stages.
type runState struct {
	doc *models.ProcessedDocument
	// needsReview forces MANUAL_REVIEW when the run would otherwise end
	// APPROVED.
	needsReview bool
}

func newRunState(doc *models.ProcessedDocument) *runState {
	return &runState{doc: doc}
}

func (s *runState) addCost(usd float64) {
	s.doc.CostUSD += usd
}

func (s *runState) addLog(format string, args ...interface{}) {
	entry := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	s.doc.ProcessingLog = append(s.doc.ProcessingLog, entry)
}

func (s *runState) addReason(r models.RejectionReason) {
	s.doc.RejectionReasons = append(s.doc.RejectionReasons, r)
}

func (s *runState) addReasons(rs []models.RejectionReason) {
	s.doc.RejectionReasons = append(s.doc.RejectionReasons, rs...)
}

func (s *runState) addValidations(vs []models.ValidationResult) {
	s.doc.ValidationResults = append(s.doc.ValidationResults, vs...)
}

// applyOutcome folds one validation pass into the run.
func (s *runState) applyOutcome(out *rules.Outcome) {
	s.addValidations(out.Results)
	s.addReasons(out.Reasons)
	s.addCost(out.CostUSD)
}

// resolveDecision applies the decision ladder: any rejection reason settles
// the run as REJECTED, an outstanding review flag settles it as
// MANUAL_REVIEW, and only a clean run is APPROVED.
func (s *runState) resolveDecision() models.FinalDecision {
	if len(s.doc.RejectionReasons) > 0 {
		return models.DecisionRejected
	}
	if s.needsReview {
		return models.DecisionManualReview
	}
	return models.DecisionApproved
}
