package devstore

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultLimit matches the Directus default page size.
const defaultLimit = 100

var filterParam = regexp.MustCompile(`^filter\[(\w+)\]\[(_\w+)\]$`)

type eqFilter struct {
	column string
	value  string
}

type listQuery struct {
	filters []eqFilter
	order   []clause.OrderByColumn
	limit   int // -1 means no limit
}

// parseListQuery reads filter, sort and limit. Only _eq filters are
// supported, in either the bracket form (filter[field][_eq]=v) or the JSON
// form (filter={"field":{"_eq":v}}). Fields outside allowed are rejected.
func parseListQuery(values url.Values, allowed map[string]bool) (listQuery, error) {
	q := listQuery{limit: defaultLimit}

	for key, vals := range values {
		m := filterParam.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if err := q.addFilter(m[1], m[2], vals[0], allowed); err != nil {
			return q, err
		}
	}

	if raw := values.Get("filter"); raw != "" {
		var f map[string]map[string]any
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return q, fmt.Errorf("invalid filter: %w", err)
		}
		for field, ops := range f {
			for op, v := range ops {
				if err := q.addFilter(field, op, fmt.Sprint(v), allowed); err != nil {
					return q, err
				}
			}
		}
	}

	if raw := values.Get("sort"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			field = strings.TrimSpace(field)
			desc := strings.HasPrefix(field, "-")
			field = strings.TrimPrefix(field, "-")
			if !allowed[field] {
				return q, fmt.Errorf("cannot sort by unknown field %q", field)
			}
			q.order = append(q.order, clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: desc})
		}
	}
	// Stable order for equal sort keys.
	q.order = append(q.order, clause.OrderByColumn{Column: clause.Column{Name: "id"}})

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < -1 {
			return q, fmt.Errorf("invalid limit %q", raw)
		}
		q.limit = n
	}
	return q, nil
}

func (q *listQuery) addFilter(field, op, value string, allowed map[string]bool) error {
	if op != "_eq" {
		return fmt.Errorf("unsupported filter operator %q", op)
	}
	if !allowed[field] {
		return fmt.Errorf("cannot filter by unknown field %q", field)
	}
	q.filters = append(q.filters, eqFilter{column: field, value: value})
	return nil
}

func (q listQuery) apply(tx *gorm.DB) *gorm.DB {
	for _, f := range q.filters {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: f.column}, Value: f.value})
	}
	for _, o := range q.order {
		tx = tx.Order(o)
	}
	if q.limit >= 0 {
		tx = tx.Limit(q.limit)
	}
	return tx
}
