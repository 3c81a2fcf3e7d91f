package object

import "strings"

// Type identifies the kind of repository object an identity refers to.
// The remote system compares type tokens case-sensitively after storing
// them uppercase, so every Type is normalized at construction.
type Type string

// Well-known repository object types. The set is open: deployments add
// custom types and the lifecycle machinery treats them uniformly, so an
// unrecognized token is normalized and used as-is rather than rejected.
const (
	// TypeClass is a global class.
	TypeClass Type = "CLAS"

	// TypeDomain is a data dictionary domain.
	TypeDomain Type = "DOMA"

	// TypeTable is a database table definition.
	TypeTable Type = "TABL"

	// TypeView is a dictionary view.
	TypeView Type = "VIEW"

	// TypeFunctionGroup is a function group, the container for function
	// modules.
	TypeFunctionGroup Type = "FUGR"

	// TypeFunctionModule is a function module. Its identity carries the
	// owning function group as the sub group.
	TypeFunctionModule Type = "FUNC"

	// TypeBehaviorDefinition is a behavior definition.
	TypeBehaviorDefinition Type = "BDEF"

	// TypeUnspecified is used when a type token is empty.
	TypeUnspecified Type = "UNSPECIFIED"
)

// String returns the normalized token for the type.
func (t Type) String() string { return string(t) }

// ParseType converts a token or a friendly name into a Type. Friendly
// names map onto the well-known tokens; anything else is uppercased and
// passed through so custom object types keep working end to end.
func ParseType(s string) Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLAS", "CLASS":
		return TypeClass
	case "DOMA", "DOMAIN":
		return TypeDomain
	case "TABL", "TABLE":
		return TypeTable
	case "VIEW":
		return TypeView
	case "FUGR", "FUNCTION_GROUP":
		return TypeFunctionGroup
	case "FUNC", "FUNCTION_MODULE":
		return TypeFunctionModule
	case "BDEF", "BEHAVIOR_DEFINITION":
		return TypeBehaviorDefinition
	case "":
		return TypeUnspecified
	default:
		return Type(strings.ToUpper(strings.TrimSpace(s)))
	}
}
