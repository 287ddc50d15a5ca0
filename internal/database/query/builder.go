// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package query builds parameterized WHERE clauses for the chat store.
package query

import (
	"strings"
)

// WhereBuilder collects SQL conditions and their bind arguments.
//
//	wb := query.NewWhereBuilder().Event(42).AfterID(100)
//	where, args := wb.BuildWithPrefix()
//	// WHERE event_id = ? AND id > ?
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder returns an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause appends a raw condition such as "user_id = ?".
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// Event restricts rows to one event.
func (wb *WhereBuilder) Event(eventID int64) *WhereBuilder {
	return wb.AddClause("event_id = ?", eventID)
}

// AfterID keeps rows with an id greater than afterID. Zero or negative values
// add nothing.
func (wb *WhereBuilder) AfterID(afterID int64) *WhereBuilder {
	if afterID <= 0 {
		return wb
	}
	return wb.AddClause("id > ?", afterID)
}

// Build joins the conditions with AND. An empty builder yields "1=1".
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", []interface{}{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix is Build with a leading "WHERE ".
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	where, args := wb.Build()
	return "WHERE " + where, args
}

