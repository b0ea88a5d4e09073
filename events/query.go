package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidQuery is returned when a query string cannot be parsed.
var ErrInvalidQuery = errors.New("invalid event query")

// Query filters events.
type Query interface {
	// Matches returns true if the event satisfies the query.
	Matches(event Event) bool

	// String returns the query in its textual form.
	String() string
}

// QueryAll matches all events.
type QueryAll struct{}

// Matches always returns true.
func (QueryAll) Matches(Event) bool { return true }

func (QueryAll) String() string { return "all" }

// QueryEventKind matches events by their kind.
type QueryEventKind struct {
	Kind string
}

// Matches returns true if the event kind matches.
func (q QueryEventKind) Matches(event Event) bool {
	return event.Kind == q.Kind
}

func (q QueryEventKind) String() string {
	return "kind='" + q.Kind + "'"
}

// QueryAnd combines queries with AND logic.
type QueryAnd struct {
	Queries []Query
}

// Matches returns true if all queries match.
func (q QueryAnd) Matches(event Event) bool {
	for _, query := range q.Queries {
		if !query.Matches(event) {
			return false
		}
	}
	return true
}

func (q QueryAnd) String() string {
	parts := make([]string, len(q.Queries))
	for i, query := range q.Queries {
		parts[i] = query.String()
	}
	return strings.Join(parts, " AND ")
}

// QueryAttribute matches events having the given attribute key and value.
type QueryAttribute struct {
	Key   string
	Value string
}

// Matches returns true if the event has the matching attribute.
func (q QueryAttribute) Matches(event Event) bool {
	v, ok := event.lookup(q.Key)
	return ok && v == q.Value
}

func (q QueryAttribute) String() string {
	return q.Key + "='" + q.Value + "'"
}

// KindWithAttribute matches events of kind that carry attribute key=value.
func KindWithAttribute(kind, key, value string) Query {
	return QueryAnd{Queries: []Query{
		QueryEventKind{Kind: kind},
		QueryAttribute{Key: key, Value: value},
	}}
}

// Operator is a comparison operator in a query condition.
type Operator string

// Supported operators.
const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpContains     Operator = "CONTAINS"
	OpExists       Operator = "EXISTS"
)

// Condition compares one event field against an operand.
type Condition struct {
	Key   string
	Op    Operator
	Value string
}

// Matches reports whether the event satisfies the condition. Ordering
// operators compare numerically and never match non-numeric values.
func (c Condition) Matches(event Event) bool {
	v, ok := event.lookup(c.Key)
	if !ok {
		return false
	}
	switch c.Op {
	case OpExists:
		return true
	case OpEqual:
		return v == c.Value
	case OpNotEqual:
		return v != c.Value
	case OpContains:
		return strings.Contains(v, c.Value)
	}

	have, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	want, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return false
	}
	switch c.Op {
	case OpLess:
		return have < want
	case OpLessEqual:
		return have <= want
	case OpGreater:
		return have > want
	case OpGreaterEqual:
		return have >= want
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Op {
	case OpExists:
		return c.Key + " EXISTS"
	case OpContains:
		return c.Key + " CONTAINS '" + c.Value + "'"
	}
	if _, err := strconv.ParseFloat(c.Value, 64); err == nil {
		return c.Key + string(c.Op) + c.Value
	}
	return c.Key + string(c.Op) + "'" + c.Value + "'"
}

// ParseQuery parses a query of the form
//
//	tx.height>=5 AND hash='AB12' AND memo CONTAINS 'x' AND fee EXISTS
//
// The empty string, "all" and "*" match every event.
func ParseQuery(s string) (Query, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" || s == "*" {
		return QueryAll{}, nil
	}

	clauses, err := splitClauses(s)
	if err != nil {
		return nil, err
	}
	conds := make([]Query, 0, len(clauses))
	for _, clause := range clauses {
		cond, err := parseCondition(clause)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return QueryAnd{Queries: conds}, nil
}

// MustParseQuery is like ParseQuery but panics on error.
func MustParseQuery(s string) Query {
	q, err := ParseQuery(s)
	if err != nil {
		panic(err)
	}
	return q
}

func splitClauses(s string) ([]string, error) {
	const sep = " AND "
	var (
		clauses []string
		start   int
		quoted  bool
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\'':
			quoted = !quoted
		case !quoted && strings.HasPrefix(s[i:], sep):
			clauses = append(clauses, strings.TrimSpace(s[start:i]))
			i += len(sep) - 1
			start = i + 1
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidQuery, s)
	}
	return append(clauses, strings.TrimSpace(s[start:])), nil
}

func parseCondition(clause string) (Condition, error) {
	if key, ok := strings.CutSuffix(clause, " "+string(OpExists)); ok {
		key = strings.TrimSpace(key)
		if key == "" {
			return Condition{}, fmt.Errorf("%w: missing key in %q", ErrInvalidQuery, clause)
		}
		return Condition{Key: key, Op: OpExists}, nil
	}

	key, op, operand, ok := cutOperator(clause)
	if !ok {
		return Condition{}, fmt.Errorf("%w: no operator in %q", ErrInvalidQuery, clause)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Condition{}, fmt.Errorf("%w: missing key in %q", ErrInvalidQuery, clause)
	}

	value, err := parseOperand(strings.TrimSpace(operand))
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %v in %q", ErrInvalidQuery, err, clause)
	}
	return Condition{Key: key, Op: op, Value: value}, nil
}

// cutOperator finds the first operator outside quotes. Two-character
// operators are tried before their one-character prefixes.
func cutOperator(clause string) (key string, op Operator, operand string, ok bool) {
	if k, v, found := strings.Cut(clause, " "+string(OpContains)+" "); found && !strings.Contains(k, "'") {
		return k, OpContains, v, true
	}
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '\'':
			return "", "", "", false
		case '<', '>', '!', '=':
			two := ""
			if i+1 < len(clause) {
				two = clause[i : i+2]
			}
			switch Operator(two) {
			case OpLessEqual, OpGreaterEqual, OpNotEqual:
				return clause[:i], Operator(two), clause[i+2:], true
			}
			if clause[i] == '!' {
				return "", "", "", false
			}
			return clause[:i], Operator(clause[i : i+1]), clause[i+1:], true
		}
	}
	return "", "", "", false
}

func parseOperand(s string) (string, error) {
	if s == "" {
		return "", errors.New("missing operand")
	}
	if s[0] == '\'' {
		if len(s) < 2 || s[len(s)-1] != '\'' {
			return "", errors.New("malformed quoted operand")
		}
		return s[1 : len(s)-1], nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("unquoted operand %q is not a number", s)
	}
	return s, nil
}
