package salesforce

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

var fieldPathQuery = mustCompile(`getpath($path)`, "$path")

func mustCompile(src string, vars ...string) *gojq.Code {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	code, err := gojq.Compile(q, gojq.WithVariables(vars))
	if err != nil {
		panic(err)
	}
	return code
}

// Field reads a dotted field path such as "Account.Owner.Name" and renders
// the value as display text. Missing fields and nulls read as "".
func (o Opportunity) Field(ctx context.Context, path string) string {
	segments := strings.Split(path, ".")
	arg := make([]any, len(segments))
	for i, s := range segments {
		arg[i] = s
	}

	iter := fieldPathQuery.RunWithContext(ctx, map[string]any(o), arg)
	v, ok := iter.Next()
	if !ok {
		return ""
	}
	switch v := v.(type) {
	case nil, error:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// soqlEscape escapes a value for use inside a single-quoted SOQL literal.
func soqlEscape(value string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
}
