package filter

import "talentchat/backend/internal/config"

// Category is the user-facing class of a violation.
type Category string

const (
	CategoryNone        Category = ""
	CategoryEmail       Category = "email"
	CategoryPhone       Category = "phone"
	CategoryURL         Category = "url"
	CategorySocial      Category = "social"
	CategoryOffPlatform Category = "off_platform"
	CategoryGeneric     Category = "generic"
)

var categoryPriority = []Category{CategoryEmail, CategoryPhone, CategoryURL, CategorySocial, CategoryOffPlatform}

var labelCategory = map[string]Category{
	config.PatternEmail:          CategoryEmail,
	config.PatternSplitEmail:     CategoryEmail,
	config.PatternPhone:          CategoryPhone,
	config.PatternSplitPhone:     CategoryPhone,
	config.PatternNumberFragment: CategoryPhone,
	config.PatternSpelledDigits:  CategoryPhone,
	config.PatternURL:            CategoryURL,
	config.PatternSplitURL:       CategoryURL,
	config.PatternSocialHandle:   CategorySocial,
	config.PatternSocialPlatform: CategorySocial,
	config.PatternSplitHandle:    CategorySocial,
	config.PatternOffPlatform:    CategoryOffPlatform,
}

// Categorize picks the highest priority category among labels.
func Categorize(labels []string) Category {
	if len(labels) == 0 {
		return CategoryNone
	}
	found := make(map[Category]bool, len(labels))
	for _, label := range labels {
		if c, ok := labelCategory[label]; ok {
			found[c] = true
		}
	}
	for _, c := range categoryPriority {
		if found[c] {
			return c
		}
	}
	return CategoryGeneric
}

// reasonKey is the localization key for a block reason. The wording depends
// on whether the sender or the recipient is the restricted talent.
func reasonKey(gate Gate, category Category) string {
	if category == CategoryNone {
		category = CategoryGeneric
	}
	side := "booker"
	if gate == GateSenderRestricted {
		side = "talent"
	}
	return "filter." + side + "." + string(category)
}
