package domain

import (
	"errors"
	"testing"
)

func TestValidateTenant(t *testing.T) {
	tests := []struct {
		tenant  string
		wantErr bool
	}{
		{"acme", false},
		{"acme-corp_2", false},
		{"", true},
		{"acme corp", true},
		{"acme:corp", true},
		{"a/b", true},
	}
	for _, tc := range tests {
		err := ValidateTenant(tc.tenant)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateTenant(%q) error = %v, wantErr %v", tc.tenant, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTenant) {
			t.Errorf("ValidateTenant(%q) should wrap ErrInvalidTenant, got %v", tc.tenant, err)
		}
	}
}

func TestTenantNaming(t *testing.T) {
	if got := CollectionName("acme"); got != "evergreen_acme" {
		t.Errorf("CollectionName = %q", got)
	}
	if got := GraphName("acme"); got != "evergreen_acme" {
		t.Errorf("GraphName = %q", got)
	}
	if got := ChunkKeyPrefix("acme"); got != "evergreen:acme:chunk:" {
		t.Errorf("ChunkKeyPrefix = %q", got)
	}
	if got := DocumentKey("acme", "d1"); got != "evergreen:acme:doc:d1" {
		t.Errorf("DocumentKey = %q", got)
	}
}
