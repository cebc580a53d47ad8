package model

import (
	"strings"
	"testing"
)

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role, minimum string
		want          bool
	}{
		{RoleAdmin, RoleUser, true},
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		// Unknown roles never pass.
		{"manager", RoleUser, false},
		{RoleAdmin, "manager", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := RoleAtLeast(tt.role, tt.minimum); got != tt.want {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.want)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleUser} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false", role)
		}
	}
	for _, role := range []string{"", "manager", "Admin"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true", role)
		}
	}
}

func TestValidatePasswordLength(t *testing.T) {
	short := strings.Repeat("x", MinPasswordLength-1)
	if err := ValidatePassword(short); err == nil {
		t.Errorf("ValidatePassword accepted %d characters", len(short))
	}
	if err := ValidatePassword(short + "x"); err != nil {
		t.Errorf("ValidatePassword rejected %d characters: %v", MinPasswordLength, err)
	}
}

func TestBorrowRequestParticipants(t *testing.T) {
	r := &BorrowRequest{BorrowerID: 1, OwnerID: 2}

	if !r.Participant(1) || !r.Participant(2) {
		t.Error("borrower and owner should be participants")
	}
	if r.Participant(3) {
		t.Error("stranger should not be a participant")
	}
	if got := r.Counterparty(1); got != 2 {
		t.Errorf("Counterparty(borrower) = %d, want 2", got)
	}
	if got := r.Counterparty(2); got != 1 {
		t.Errorf("Counterparty(owner) = %d, want 1", got)
	}
}
