package document

// Workflow status values, strictly ordered: todo < signed < witnessed.
const (
	StatusField    = "status"
	WitnessField   = "witness"
	SignatureField = "signature"

	StatusTodo      = "todo"
	StatusSigned    = "signed"
	StatusWitnessed = "witnessed"
)

// StatusOrder maps a status value to its position in the workflow.
// Unknown values order as -1, below todo.
func StatusOrder(status string) int {
	switch status {
	case StatusTodo:
		return 0
	case StatusSigned:
		return 1
	case StatusWitnessed:
		return 2
	}
	return -1
}

func statusLT(a, b string) bool {
	return StatusOrder(a) < StatusOrder(b)
}

func statusOf(doc Document) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[StatusField].(string)
	return s
}

// changedFields reports whether two documents differ structurally once
// the given top-level fields are removed. Comparison is by
// order-insensitive deep hash, not reference equality.
func changedFields(orig, proposed Document, skip ...string) bool {
	return hashWithout(orig, skip) != hashWithout(proposed, skip)
}

func hashWithout(doc Document, skip []string) string {
	trimmed := map[string]any{}
	for k, v := range doc {
		trimmed[k] = v
	}
	for _, field := range skip {
		delete(trimmed, field)
	}
	return DeepHash(trimmed)
}

// ChangeAllowed decides whether an edit to a versioned record is legal
// under the signing workflow. A signed or witnessed record accepts only
// status-field changes unless the edit steps the status backward;
// un-witnessing may additionally change only the witness field.
// Server-managed metadata is stripped from both sides before comparison
// so a client echoing a fetched record back never trips the gate on
// server-stamped fields.
func ChangeAllowed(original, proposed Document) bool {
	orig := StripMetadata(original)
	next := StripMetadata(proposed)

	isSigned := statusOf(orig) == StatusSigned
	isWitnessed := statusOf(orig) == StatusWitnessed

	isWitnessing := statusOf(next) == StatusWitnessed && statusLT(statusOf(orig), StatusWitnessed)
	isUnsigning := statusLT(statusOf(next), StatusSigned) && statusOf(orig) == StatusSigned
	isUnwitnessing := statusLT(statusOf(next), StatusWitnessed) && statusOf(orig) == StatusWitnessed

	changedNonStatus := changedFields(orig, next, StatusField)
	changedNonStatusWitness := changedFields(orig, next, StatusField, WitnessField)

	if (isSigned || isWitnessed) && !(isUnsigning || isUnwitnessing) && changedNonStatus {
		return false
	}
	if isSigned && isWitnessing && changedNonStatusWitness {
		return false
	}
	if isWitnessed && isUnwitnessing && changedNonStatusWitness {
		return false
	}
	return true
}
