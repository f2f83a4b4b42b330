package tonchain

import (
	"strings"
	"testing"
)

func TestNewDepositTagParsesBack(t *testing.T) {
	tag := NewDepositTag()
	if !strings.HasPrefix(tag, "BIM:DEPOSIT:") {
		t.Fatalf("tag %q missing prefix", tag)
	}

	parsed, ok := ParseDepositTag(tag)
	if !ok {
		t.Fatalf("generated tag %q does not parse", tag)
	}
	if parsed != tag {
		t.Errorf("parsed = %q, want %q", parsed, tag)
	}
}

func TestNewDepositTagIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tag := NewDepositTag()
		if seen[tag] {
			t.Fatalf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}
}

func TestParseDepositTagRejectsForeignMemos(t *testing.T) {
	tests := []string{
		"",
		"thanks for lunch",
		"BIM:DEPOSIT:",
		"BIM:DEPOSIT:UPPER123",          // uppercase not issued by us
		"BIM:WITHDRAWAL:abc12345",
		"  BIM:DEPOSIT:abc12345 extra",
		"xBIM:DEPOSIT:abc12345",
	}
	for _, memo := range tests {
		if _, ok := ParseDepositTag(memo); ok {
			t.Errorf("ParseDepositTag(%q) = ok, want rejected", memo)
		}
	}

	if tag, ok := ParseDepositTag("  BIM:DEPOSIT:abc12345  "); !ok || tag != "BIM:DEPOSIT:abc12345" {
		t.Errorf("whitespace-padded tag not accepted: %q %v", tag, ok)
	}
}

func TestValidateAddress(t *testing.T) {
	if !ValidateAddress("EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N") {
		t.Error("rejected a valid address")
	}
	if ValidateAddress("not-an-address") {
		t.Error("accepted garbage as an address")
	}
	if ValidateAddress("") {
		t.Error("accepted an empty address")
	}
}
