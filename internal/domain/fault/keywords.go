package fault

import "strings"

// Keyword tables for category derivation. Matching is case-insensitive
// substring search over the extracted message plus any exception type
// id; the space-free variants catch camel-cased type ids such as
// "ExceptionResourceAlreadyExists". Keeping the tables here, in one
// place, is deliberate: the remote system's wording drifts between
// releases and new phrasings should land in exactly one spot.
var (
	alreadyExistsKeywords = []string{
		"already exists",
		"does already exist",
		"alreadyexists",
	}

	lockedKeywords = []string{
		"is locked",
		"locked by",
		"lock conflict",
		"foreign lock",
		"resourcelocked",
	}

	notReadyKeywords = []string{
		"importing object",
		"from the database",
	}
)

// matchCategory derives a category from the extracted message text, or
// ("", false) when no keyword table matches.
func matchCategory(text string) (Category, bool) {
	lowered := strings.ToLower(text)

	if containsAny(lowered, alreadyExistsKeywords) {
		return CategoryAlreadyExists, true
	}
	if containsAny(lowered, lockedKeywords) {
		return CategoryLocked, true
	}
	if containsAny(lowered, notReadyKeywords) {
		return CategoryNotReadyYet, true
	}
	return "", false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
