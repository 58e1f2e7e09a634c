package workflow

import (
	"fmt"
	"time"

	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
)

// DefaultMinLeadDays is the H-1 rule: the wedding must be at least one
// full calendar day after the submission's reference date.
const DefaultMinLeadDays = 1

// ValidateAdmission checks the proposed marriage date against the
// submission's reference date. Only calendar dates are compared; the
// time of day is stripped on both sides.
func ValidateAdmission(referenceDate, proposedDate time.Time, minLeadDays int) error {
	if minLeadDays <= 0 {
		minLeadDays = DefaultMinLeadDays
	}

	diff := civilDate(proposedDate).Sub(civilDate(referenceDate))
	days := int(diff.Hours() / 24)

	if days < minLeadDays {
		return appErrors.Clone(appErrors.ErrAdmissionViolation, fmt.Sprintf(
			"Gagal mengirim: pengajuan harus dikirim minimal %d hari sebelum tanggal akad nikah (H-%d). Pengajuan untuk pernikahan hari ini atau masa lalu tidak diperbolehkan.",
			minLeadDays, minLeadDays))
	}

	return nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
