package sandbox

import (
	"reflect"

	"cardcheck/internal/search"
)

// Symbols exposes the search capability package to interpreted programs.
// This is the entire surface a generated program can reach: the toolkit's
// query methods, the result types, and the structural kind constants.
var Symbols = map[string]map[string]reflect.Value{
	"cardcheck/internal/search/search": {
		"Toolkit": reflect.ValueOf((*search.Toolkit)(nil)),
		"Result":  reflect.ValueOf((*search.Result)(nil)),
		"Match":   reflect.ValueOf((*search.Match)(nil)),
		"Merge":   reflect.ValueOf(search.Merge),

		"KindCall":     reflect.ValueOf(search.KindCall),
		"KindFunction": reflect.ValueOf(search.KindFunction),
		"KindClass":    reflect.ValueOf(search.KindClass),
		"KindImport":   reflect.ValueOf(search.KindImport),
	},
}
