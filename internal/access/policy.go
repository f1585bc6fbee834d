// Package access models row-level access rules as named, explicit grants.
package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Table names a protected forum table.
type Table string

const (
	TableQuestions Table = "questions"
	TableAnswers   Table = "answers"
	TableVotes     Table = "votes"
)

// Operation names a statement class checked by a policy.
type Operation string

const (
	OperationSelect Operation = "select"
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

const (
	// PolicyPublic lets any caller read and write without identification.
	PolicyPublic = "public"
	// PolicyReadOnly lets any caller read and nobody write.
	PolicyReadOnly = "read_only"
)

var (
	ErrUnknownPolicy = errors.New("access: unknown policy")
	ErrDenied        = errors.New("access: operation denied")
)

// Grant permits one operation on one table.
type Grant struct {
	Table     Table
	Operation Operation
}

func (g Grant) String() string {
	return fmt.Sprintf("%s:%s", g.Table, g.Operation)
}

// Policy is a named set of grants. Anything not granted is denied.
type Policy struct {
	name   string
	grants map[Grant]struct{}
}

// NewPolicy builds a policy from explicit grants.
func NewPolicy(name string, grants ...Grant) Policy {
	set := make(map[Grant]struct{}, len(grants))
	for _, grant := range grants {
		set[grant] = struct{}{}
	}
	return Policy{name: name, grants: set}
}

// Name returns the configured policy name.
func (p Policy) Name() string {
	return p.name
}

// Allows reports whether the policy grants the operation on the table.
func (p Policy) Allows(table Table, operation Operation) bool {
	_, ok := p.grants[Grant{Table: table, Operation: operation}]
	return ok
}

// Check returns ErrDenied wrapped with the grant when the policy does not allow it.
func (p Policy) Check(table Table, operation Operation) error {
	if p.Allows(table, operation) {
		return nil
	}
	return fmt.Errorf("%w: %s under policy %s", ErrDenied, Grant{Table: table, Operation: operation}, p.name)
}

// Grants lists the policy grants in a stable order.
func (p Policy) Grants() []Grant {
	grants := make([]Grant, 0, len(p.grants))
	for grant := range p.grants {
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].String() < grants[j].String()
	})
	return grants
}

// Public mirrors the open forum rules: questions are readable and writable by anyone,
// answers are append-only and votes may be cast and retracted.
func Public() Policy {
	return NewPolicy(PolicyPublic,
		Grant{Table: TableQuestions, Operation: OperationSelect},
		Grant{Table: TableQuestions, Operation: OperationInsert},
		Grant{Table: TableQuestions, Operation: OperationUpdate},
		Grant{Table: TableQuestions, Operation: OperationDelete},
		Grant{Table: TableAnswers, Operation: OperationSelect},
		Grant{Table: TableAnswers, Operation: OperationInsert},
		Grant{Table: TableVotes, Operation: OperationSelect},
		Grant{Table: TableVotes, Operation: OperationInsert},
		Grant{Table: TableVotes, Operation: OperationDelete},
	)
}

// ReadOnly grants select on every table.
func ReadOnly() Policy {
	return NewPolicy(PolicyReadOnly,
		Grant{Table: TableQuestions, Operation: OperationSelect},
		Grant{Table: TableAnswers, Operation: OperationSelect},
		Grant{Table: TableVotes, Operation: OperationSelect},
	)
}

// Lookup resolves a built-in policy by name.
func Lookup(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyPublic:
		return Public(), nil
	case PolicyReadOnly:
		return ReadOnly(), nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}
