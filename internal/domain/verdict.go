package domain

// Category classifies why content was flagged.
type Category string

const (
	CategoryNone         Category = "none"
	CategoryProfanity    Category = "profanity"
	CategoryPolitics     Category = "politics"
	CategoryPersonalInfo Category = "personal-info"
	CategoryDangerous    Category = "dangerous"
	CategoryAdult        Category = "adult"
	CategoryUnsafeImage  Category = "unsafe-image"
)

// Verdict is the classifier output for one payload.
type Verdict struct {
	Safe     bool
	Category Category
	// Sanitized carries the text with profanity masked; empty for images.
	Sanitized string
}

// SafeVerdict is returned for clean content.
func SafeVerdict() Verdict {
	return Verdict{Safe: true, Category: CategoryNone}
}

// UnsafeVerdict flags content with the given category.
func UnsafeVerdict(category Category) Verdict {
	return Verdict{Safe: false, Category: category}
}

// DisplayReason maps a category to the user-facing label.
func (c Category) DisplayReason() string {
	switch c {
	case CategoryProfanity:
		return "Inappropriate Language"
	case CategoryPolitics:
		return "Political Discussion Prohibited"
	case CategoryPersonalInfo:
		return "Sharing Personal Info Prohibited"
	case CategoryDangerous:
		return "Dangerous Activity/Bypass Prohibited"
	case CategoryAdult:
		return "Adult Content Prohibited"
	case CategoryUnsafeImage:
		return "Unsafe Image"
	default:
		return "Prohibited Content"
	}
}
