package model

// Category is the tally bucket an outcome is counted under.
type Category string

const (
	CategoryAPI          Category = "api"
	CategoryAISuccess    Category = "ai_success"
	CategoryOCRSuccess   Category = "ocr_success"
	CategoryRateLimited  Category = "rate_limited"
	CategoryError        Category = "error"
	CategoryNotAvailable Category = "not_available"
)

// Categories lists every category in reporting order.
func Categories() []Category {
	return []Category{
		CategoryAPI,
		CategoryAISuccess,
		CategoryOCRSuccess,
		CategoryNotAvailable,
		CategoryRateLimited,
		CategoryError,
	}
}

// Classify maps an outcome to exactly one category.
func Classify(o Outcome) Category {
	switch {
	case o.IsSuccess():
		switch o.record.Provenance {
		case ProvenanceAI:
			return CategoryAISuccess
		case ProvenanceOCR:
			return CategoryOCRSuccess
		default:
			return CategoryAPI
		}
	case o.IsRateLimited():
		return CategoryRateLimited
	case o.IsUnavailable():
		return CategoryNotAvailable
	default:
		return CategoryError
	}
}
