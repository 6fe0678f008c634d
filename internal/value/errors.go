package value

import "fmt"

// MaxDepth bounds the nesting accepted by every converter in this module.
const MaxDepth = 64

// MaxNodes bounds the number of values a single guest-to-host conversion
// may produce. Shared sub-tables are converted once per reference.
const MaxNodes = 1 << 20

// ConversionKind classifies a ConversionError.
type ConversionKind int

const (
	NonFinite ConversionKind = iota + 1
	TooDeep
	UnsupportedKey
	TooLarge
)

func (k ConversionKind) String() string {
	switch k {
	case NonFinite:
		return "non-finite number"
	case TooDeep:
		return "nesting too deep"
	case UnsupportedKey:
		return "unsupported key"
	case TooLarge:
		return "too many values"
	}
	return "unknown"
}

// ConversionError reports a value that has no faithful representation on
// the other side of a conversion.
type ConversionError struct {
	Kind ConversionKind
	Path string
}

func (e *ConversionError) Error() string {
	if e.Path == "" {
		return "conversion: " + e.Kind.String()
	}
	return fmt.Sprintf("conversion: %s at %s", e.Kind, e.Path)
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &ConversionError{Kind: TooDeep}).
func (e *ConversionError) Is(target error) bool {
	t, ok := target.(*ConversionError)
	return ok && t.Kind == e.Kind
}
