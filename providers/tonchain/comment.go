package tonchain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
)

const depositTagPrefix = "BIM:DEPOSIT:"

var depositTagRe = regexp.MustCompile(`^BIM:DEPOSIT:[a-z0-9]{8,32}$`)

// NewDepositTag issues the unique memo users must attach to a deposit transfer.
func NewDepositTag() string {
	return depositTagPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// ParseDepositTag extracts a deposit tag from a transfer comment.
// Returns ok=false for any memo that is not ours.
func ParseDepositTag(memo string) (string, bool) {
	memo = strings.TrimSpace(memo)
	if !depositTagRe.MatchString(memo) {
		return "", false
	}
	return memo, true
}

func ValidateAddress(s string) bool {
	_, err := address.ParseAddr(s)
	return err == nil
}
