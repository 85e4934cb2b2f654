package optly

import "fmt"

// Result holds the outcome of a client call: a list of assets, a list of ids
// produced by ListIDs, or a table read from CSV. Transformations mutate the
// receiver and return it so they can be chained. A failed transformation
// leaves the data untouched and records an error; later transformations are
// skipped and Err reports the first failure.
type Result struct {
	items      []Asset
	ids        []string
	table      *Table
	accountID  int64
	dispatcher EventDispatcher
	err        error
}

// NewListResult wraps a list of assets.
func NewListResult(items []Asset) *Result {
	if items == nil {
		items = []Asset{}
	}

	return &Result{items: items}
}

// NewTableResult wraps tabular event data. accountID and dispatcher are used
// by ConstructPayload; dispatcher may be nil when events are never sent.
func NewTableResult(table *Table, accountID int64, dispatcher EventDispatcher) *Result {
	return &Result{
		table:      table,
		accountID:  accountID,
		dispatcher: dispatcher,
	}
}

// Items returns the asset list.
func (r *Result) Items() []Asset {
	return r.items
}

// IDs returns the id list produced by ListIDs.
func (r *Result) IDs() []string {
	return r.ids
}

// Table returns the tabular data, or nil for list results.
func (r *Result) Table() *Table {
	return r.table
}

// Err returns the first error recorded by Filter or ListIDs.
func (r *Result) Err() error {
	return r.err
}

// Len returns the number of items, ids or rows held.
func (r *Result) Len() int {
	switch {
	case r.table != nil:
		return r.table.Len()
	case r.ids != nil:
		return len(r.ids)
	default:
		return len(r.items)
	}
}

// Filter keeps the items matching every criterion. A field matches when its
// text equals the wanted value exactly, or when the field is a string, list
// or object whose text contains the value, or when it is a list holding an
// object with a value containing it. Booleans and null also match the
// spellings True, False and None. An item without a criterion's field
// records ErrMissingField. Table rows match on exact cell equality; an
// unknown column records ErrMissingColumn.
func (r *Result) Filter(criteria map[string]string) *Result {
	if r.err != nil {
		return r
	}

	if r.table != nil {
		for column := range criteria {
			if !r.table.Has(column) {
				r.err = fmt.Errorf("filtering rows: %w: %q", ErrMissingColumn, column)

				return r
			}
		}

		r.table.Retain(func(row int) bool {
			for column, want := range criteria {
				value, _ := r.table.Cell(row, column)
				if value != want {
					return false
				}
			}

			return true
		})

		return r
	}

	for index, item := range r.items {
		for key := range criteria {
			if _, ok := item[key]; !ok {
				r.err = fmt.Errorf("filtering item %d: %w: %q", index, ErrMissingField, key)

				return r
			}
		}
	}

	kept := make([]Asset, 0, len(r.items))

	for _, item := range r.items {
		if assetMatches(item, criteria) {
			kept = append(kept, item)
		}
	}

	r.items = kept

	return r
}

func assetMatches(item Asset, criteria map[string]string) bool {
	for key, want := range criteria {
		if !matchesCriterion(item[key], want) {
			return false
		}
	}

	return true
}

// ListIDs replaces the asset list with the first integer found in each
// item's key field, deduplicated in first-seen order. Items whose field
// holds no integer are skipped; an item without the field records
// ErrMissingField and leaves the result unchanged.
func (r *Result) ListIDs(key string) *Result {
	if r.err != nil {
		return r
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(r.items))

	for index, item := range r.items {
		value, ok := item[key]
		if !ok {
			r.err = fmt.Errorf("listing ids of item %d: %w: %q", index, ErrMissingField, key)

			return r
		}

		id, found := FirstInteger(Stringify(value))
		if !found {
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	r.ids = ids
	r.items = nil

	return r
}
