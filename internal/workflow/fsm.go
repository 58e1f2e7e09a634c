package workflow

import (
	"fmt"

	"github.com/kua-dukcapil/workflow-api/internal/models"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
)

// Actor identifies the authenticated user driving a transition.
type Actor struct {
	ID   string
	Name string
	Role models.UserRole
}

// ClaimEffect describes what a transition does to the exclusive claim.
type ClaimEffect int

const (
	// ClaimNone leaves the assignee column untouched.
	ClaimNone ClaimEffect = iota
	// ClaimAcquire sets the caller as assignee.
	ClaimAcquire
	// ClaimRelease clears the assignee so the next stage can claim freely.
	ClaimRelease
	// ClaimRetain keeps the assignee on terminal states for the audit trail.
	ClaimRetain
)

// Rule describes one legal transition of the submission state machine.
type Rule struct {
	Roles          []models.UserRole
	RequiresClaim  bool
	Effect         ClaimEffect
	ReasonRequired bool
	Admission      bool
}

type key struct {
	from models.SubmissionStatus
	to   models.SubmissionStatus
}

// transitions is the single source of truth for what may happen to a
// submission. Role asymmetries (operators never touch verification,
// verifiers share the data-entry stage) live here, not in callers.
var transitions = map[key]Rule{
	{models.StatusDraft, models.StatusSubmitted}: {
		Roles:     []models.UserRole{models.RoleKUA},
		Admission: true,
	},
	{models.StatusNeedsRevision, models.StatusSubmitted}: {
		Roles:     []models.UserRole{models.RoleKUA},
		Admission: true,
	},
	{models.StatusSubmitted, models.StatusProcessing}: {
		Roles:  []models.UserRole{models.RoleOperator, models.RoleVerifier},
		Effect: ClaimAcquire,
	},
	{models.StatusProcessing, models.StatusNeedsRevision}: {
		Roles:          []models.UserRole{models.RoleOperator, models.RoleVerifier},
		RequiresClaim:  true,
		Effect:         ClaimRelease,
		ReasonRequired: true,
	},
	{models.StatusProcessing, models.StatusPendingVerification}: {
		Roles:         []models.UserRole{models.RoleOperator, models.RoleVerifier},
		RequiresClaim: true,
		Effect:        ClaimRelease,
	},
	// Same-state claim: a verifier serializes access to a submission that
	// already sits in PENDING_VERIFICATION without advancing the pipeline.
	{models.StatusPendingVerification, models.StatusPendingVerification}: {
		Roles:  []models.UserRole{models.RoleVerifier},
		Effect: ClaimAcquire,
	},
	{models.StatusPendingVerification, models.StatusApproved}: {
		Roles:         []models.UserRole{models.RoleVerifier},
		RequiresClaim: true,
		Effect:        ClaimRetain,
	},
	{models.StatusPendingVerification, models.StatusRejected}: {
		Roles:          []models.UserRole{models.RoleVerifier},
		RequiresClaim:  true,
		Effect:         ClaimRetain,
		ReasonRequired: true,
	},
	// A verifier working the data-entry stage may decide directly from
	// PROCESSING while holding the claim.
	{models.StatusProcessing, models.StatusApproved}: {
		Roles:         []models.UserRole{models.RoleVerifier},
		RequiresClaim: true,
		Effect:        ClaimRetain,
	},
	{models.StatusProcessing, models.StatusRejected}: {
		Roles:          []models.UserRole{models.RoleVerifier},
		RequiresClaim:  true,
		Effect:         ClaimRetain,
		ReasonRequired: true,
	},
}

// Lookup returns the rule for (from, to) regardless of actor role.
func Lookup(from, to models.SubmissionStatus) (Rule, bool) {
	rule, ok := transitions[key{from, to}]
	return rule, ok
}

// Validate returns the rule for (from, to, role) or an ILLEGAL_TRANSITION
// error naming the rejected pair.
func Validate(from, to models.SubmissionStatus, role models.UserRole) (Rule, error) {
	rule, ok := transitions[key{from, to}]
	if !ok {
		return Rule{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("transisi %s → %s tidak diizinkan", from, to))
	}
	for _, allowed := range rule.Roles {
		if allowed == role {
			return rule, nil
		}
	}
	return Rule{}, appErrors.Clone(appErrors.ErrIllegalTransition,
		fmt.Sprintf("transisi %s → %s tidak diizinkan untuk peran %s", from, to, role))
}

// ClaimTarget resolves the status a claim moves the submission to:
// SUBMITTED items enter PROCESSING, PENDING_VERIFICATION items stay put.
func ClaimTarget(from models.SubmissionStatus, role models.UserRole) (models.SubmissionStatus, error) {
	switch from {
	case models.StatusSubmitted:
		if _, err := Validate(from, models.StatusProcessing, role); err != nil {
			return "", err
		}
		return models.StatusProcessing, nil
	case models.StatusPendingVerification:
		if _, err := Validate(from, from, role); err != nil {
			return "", err
		}
		return models.StatusPendingVerification, nil
	default:
		return "", appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("pengajuan dengan status %s tidak dapat diklaim", from))
	}
}

// Lockable reports whether a non-null assignee is legal for the status.
func Lockable(status models.SubmissionStatus) bool {
	switch status {
	case models.StatusProcessing, models.StatusPendingVerification,
		models.StatusApproved, models.StatusRejected:
		return true
	default:
		return false
	}
}
