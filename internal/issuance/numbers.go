package issuance

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/mhm-assoc/memberpass/internal/models"
)

// NextMemberNumber allocates the next member number for a year, shaped
// like MHM-2025-00006. Soft-deleted members keep their numbers, so the
// scan includes them.
func NextMemberNumber(db *gorm.DB, association, year string) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", association, year)

	var last models.Member
	err := db.Unscoped().
		Where("member_number LIKE ?", prefix+"%").
		Order("member_number DESC").
		First(&last).Error

	seq := 1
	if err == nil && last.MemberNumber != nil {
		tail := strings.TrimPrefix(*last.MemberNumber, prefix)
		if n, perr := strconv.Atoi(tail); perr == nil {
			seq = n + 1
		}
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf("failed to allocate member number: %w", err)
	}

	return fmt.Sprintf("%s%05d", prefix, seq), nil
}
