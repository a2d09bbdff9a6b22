package core

import "testing"

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		account string
		want    bool
	}{
		{"wildcard matches descendant", "Expenses:Food:*", "Expenses:Food:Groceries", true},
		{"wildcard matches deep descendant", "Expenses:Food:*", "Expenses:Food:Out:Bar", true},
		{"wildcard matches the prefix itself", "Expenses:Food:*", "Expenses:Food", true},
		{"wildcard rejects sibling", "Expenses:Food:*", "Expenses:Travel", false},
		{"wildcard rejects segment prefix", "Expenses:Food:*", "Expenses:Foodstuff", false},
		{"exact pattern matches exactly", "Expenses:Travel", "Expenses:Travel", true},
		{"exact pattern rejects descendant", "Expenses:Travel", "Expenses:Travel:Flights", false},
		{"bare wildcard matches everything", "*", "Assets:Checking", true},
		{"empty pattern matches nothing", "", "Assets:Checking", false},
		{"empty account matches nothing", "Expenses:*", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesPattern(tt.pattern, tt.account); got != tt.want {
				t.Errorf("MatchesPattern(%q, %q) = %v, want %v", tt.pattern, tt.account, got, tt.want)
			}
		})
	}
}

func TestValidateAccountPattern(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{"Expenses:Food:*", false},
		{"Expenses:Food", false},
		{"*", false},
		{"", true},
		{"Expenses::Food", true},
		{"Expenses:*:Food", true},
	}
	for _, tt := range tests {
		err := ValidateAccountPattern(tt.pattern)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAccountPattern(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
		}
	}
}

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		account string
		wantErr bool
	}{
		{"Assets:Checking", false},
		{"Expenses", false},
		{"", true},
		{"Expenses::Food", true},
		{"Expenses:*", true},
	}
	for _, tt := range tests {
		err := ValidateAccountName(tt.account)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAccountName(%q) error = %v, wantErr %v", tt.account, err, tt.wantErr)
		}
	}
}
