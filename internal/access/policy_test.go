package access

import (
	"errors"
	"testing"
)

func TestPublicPolicyGrants(t *testing.T) {
	policy := Public()

	allowed := []Grant{
		{Table: TableQuestions, Operation: OperationSelect},
		{Table: TableQuestions, Operation: OperationInsert},
		{Table: TableQuestions, Operation: OperationUpdate},
		{Table: TableQuestions, Operation: OperationDelete},
		{Table: TableAnswers, Operation: OperationSelect},
		{Table: TableAnswers, Operation: OperationInsert},
		{Table: TableVotes, Operation: OperationSelect},
		{Table: TableVotes, Operation: OperationInsert},
		{Table: TableVotes, Operation: OperationDelete},
	}
	for _, grant := range allowed {
		if err := policy.Check(grant.Table, grant.Operation); err != nil {
			t.Fatalf("expected %s to be allowed: %v", grant, err)
		}
	}

	denied := []Grant{
		{Table: TableAnswers, Operation: OperationUpdate},
		{Table: TableAnswers, Operation: OperationDelete},
		{Table: TableVotes, Operation: OperationUpdate},
	}
	for _, grant := range denied {
		err := policy.Check(grant.Table, grant.Operation)
		if !errors.Is(err, ErrDenied) {
			t.Fatalf("expected %s to be denied, got %v", grant, err)
		}
	}

	if len(policy.Grants()) != len(allowed) {
		t.Fatalf("expected %d grants, got %d", len(allowed), len(policy.Grants()))
	}
}

func TestReadOnlyPolicyDeniesWrites(t *testing.T) {
	policy := ReadOnly()
	if !policy.Allows(TableVotes, OperationSelect) {
		t.Fatalf("expected read access to votes")
	}
	if policy.Allows(TableVotes, OperationInsert) {
		t.Fatalf("expected vote insert to be denied")
	}
	if policy.Allows(TableQuestions, OperationDelete) {
		t.Fatalf("expected question delete to be denied")
	}
}

func TestLookup(t *testing.T) {
	policy, err := Lookup(" Public ")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if policy.Name() != PolicyPublic {
		t.Fatalf("unexpected policy name %q", policy.Name())
	}
	if _, err := Lookup("members_only"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected unknown policy error, got %v", err)
	}
}
