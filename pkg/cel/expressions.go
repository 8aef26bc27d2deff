package cel

import "strconv"

// FieldEndsWith builds `event.<field>.endsWith("<suffix>")`, guarded so events
// without the field evaluate to false instead of failing.
func FieldEndsWith(field, suffix string) string {
	return "has(event." + field + ") && event." + field + ".endsWith(" + strconv.Quote(suffix) + ")"
}
