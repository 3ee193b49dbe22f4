package workflow

// stepState names the position of a workflow step explicitly instead of
// leaving callers to compare the cursor against 0 and the catalog length.
type stepState int

const (
	// awaitingFirstQuestion: no question has been asked yet. An answer call
	// in this state behaves exactly like start.
	awaitingFirstQuestion stepState = iota
	// awaitingConfirmation: a question has been asked and the reply must be
	// classified against the previous question/reply pair.
	awaitingConfirmation
	// terminal: the last catalog question has been asked. The reply closes
	// the workflow without classification.
	terminal
)

// classifyStep maps the persisted cursor onto the tagged state. prevIndex is
// only meaningful for awaitingConfirmation and terminal.
func classifyStep(cursor, total int) (state stepState, prevIndex int) {
	switch {
	case cursor == 0:
		return awaitingFirstQuestion, -1
	case cursor >= total:
		return terminal, total - 1
	default:
		return awaitingConfirmation, cursor - 1
	}
}
