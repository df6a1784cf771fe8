package sop

// Deviation types emitted by the built-in checkers.
const (
	TypeMissingStep     = "missing_step"
	TypeWrongSequence   = "wrong_sequence"
	TypeUnexpectedStep  = "unexpected_step"
	TypeMissingApproval = "missing_approval"
	TypeTimingViolation = "timing_violation"
)

// knownTypes is the canonical deviation-type vocabulary. Other values are
// accepted but the cleaner reports them as warnings.
var knownTypes = map[string]struct{}{}

func init() {
	for _, t := range []string{
		// process & sequence
		"missing_step", "wrong_sequence", "unexpected_step", "duplicate_step",
		"skipped_mandatory_subprocess",
		// approval
		"missing_approval", "insufficient_approval_hierarchy", "unauthorized_approver",
		"self_approval_violation", "escalation_missing",
		// timing
		"timing_violation", "tat_breach", "cutoff_breach", "post_disbursement_qc_delay",
		// eligibility & credit
		"ineligible_age", "ineligible_tenor", "emi_to_income_breach",
		"low_score_approved_without_exception",
		// kyc / aml
		"kyc_incomplete_progression", "sanctions_hit_not_rejected",
		"pep_no_edd_or_extra_approval",
		// documentation & legal
		"missing_mandatory_document", "expired_document_used", "legal_clearance_missing",
		"collateral_docs_incomplete",
		// collateral
		"ltv_breach", "valuation_missing_or_stale", "security_not_created",
		// disbursement
		"pre_disbursement_condition_unmet", "mandate_not_set_before_disbursement",
		"incorrect_disbursement_amount", "post_disbursement_qc_missing",
		// collection & restructuring
		"collection_escalation_delay", "unauthorized_restructure", "unauthorized_writeoff",
		// regulatory
		"classification_mismatch", "provisioning_shortfall",
		"regulatory_report_missing_or_late",
		// data quality & operational
		"missing_core_field", "invalid_format", "inconsistent_value_across_steps",
		"duplicate_active_case", "audit_trail_missing",
	} {
		knownTypes[t] = struct{}{}
	}
}

// KnownType reports whether t belongs to the canonical vocabulary.
func KnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// KnownTypeCount is the size of the canonical vocabulary.
func KnownTypeCount() int { return len(knownTypes) }
