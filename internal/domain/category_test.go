package domain

import "testing"

func TestIsTaxonomyCategory(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"groceries", true},
		{"food_dining", true},
		{"other", true},
		{"Groceries", false},
		{" groceries", false},
		{"uncategorized", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsTaxonomyCategory(tt.input); got != tt.want {
				t.Errorf("IsTaxonomyCategory(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsAssignableCategory(t *testing.T) {
	if !IsAssignableCategory(CategoryUncategorized) {
		t.Error("uncategorized should be assignable")
	}
	if IsAssignableCategory("misc") {
		t.Error("misc should not be assignable")
	}
	if len(Taxonomy) != 17 {
		t.Errorf("expected 17 taxonomy entries, got %d", len(Taxonomy))
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusReviewed, StatusExcluded} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("approved").Valid() {
		t.Error("approved should not be valid")
	}
}
