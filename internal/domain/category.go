package domain

// Category labels. The set is fixed and case-sensitive.
const (
	CategoryHousing        = "housing"
	CategoryTransportation = "transportation"
	CategoryFoodDining     = "food_dining"
	CategoryGroceries      = "groceries"
	CategoryUtilities      = "utilities"
	CategoryHealthcare     = "healthcare"
	CategoryEntertainment  = "entertainment"
	CategoryShopping       = "shopping"
	CategoryTravel         = "travel"
	CategoryEducation      = "education"
	CategoryPersonalCare   = "personal_care"
	CategoryIncome         = "income"
	CategoryTransfer       = "transfer"
	CategoryInvestment     = "investment"
	CategorySubscription   = "subscription"
	CategoryFees           = "fees"
	CategoryOther          = "other"

	// CategoryUncategorized is stored when no category was successfully
	// assigned. It is not part of the taxonomy the model may answer with.
	CategoryUncategorized = "uncategorized"
)

// Taxonomy lists the categories the model may assign, in prompt order.
var Taxonomy = []string{
	CategoryHousing,
	CategoryTransportation,
	CategoryFoodDining,
	CategoryGroceries,
	CategoryUtilities,
	CategoryHealthcare,
	CategoryEntertainment,
	CategoryShopping,
	CategoryTravel,
	CategoryEducation,
	CategoryPersonalCare,
	CategoryIncome,
	CategoryTransfer,
	CategoryInvestment,
	CategorySubscription,
	CategoryFees,
	CategoryOther,
}

var taxonomySet = func() map[string]bool {
	m := make(map[string]bool, len(Taxonomy))
	for _, c := range Taxonomy {
		m[c] = true
	}
	return m
}()

// IsTaxonomyCategory reports whether c is an exact member of Taxonomy.
func IsTaxonomyCategory(c string) bool {
	return taxonomySet[c]
}

// IsAssignableCategory reports whether c may be stored on a transaction:
// any taxonomy member or CategoryUncategorized.
func IsAssignableCategory(c string) bool {
	return c == CategoryUncategorized || taxonomySet[c]
}
