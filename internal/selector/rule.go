package selector

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/posterdigest/internal/core"
)

// skipRule is a compiled expr-lang expression over an item. A true result
// filters the item.
type skipRule struct {
	source  string
	program *vm.Program
}

func compileSkipRule(source string) (*skipRule, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(ruleEnv(core.Item{}, nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile skip rule: %w", err)
	}
	return &skipRule{source: source, program: program}, nil
}

func (r *skipRule) Match(item core.Item, genres []string) (bool, error) {
	result, err := expr.Run(r.program, ruleEnv(item, genres))
	if err != nil {
		return false, err
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("skip rule did not return bool")
	}
	return matched, nil
}

func ruleEnv(item core.Item, genres []string) map[string]interface{} {
	year, _ := strconv.Atoi(item.Year)
	posterNumber, _ := strconv.Atoi(item.PosterNumber)
	classes := make([]string, 0, len(item.Variants))
	for class := range item.Variants {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	if genres == nil {
		genres = []string{}
	}
	return map[string]interface{}{
		"title":         item.Title,
		"year":          year,
		"poster_number": posterNumber,
		"base_name":     item.BaseName,
		"genres":        genres,
		"classes":       classes,
		"url":           item.ID,
	}
}
