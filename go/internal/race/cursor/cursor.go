// Package cursor validates incremental typing input against the race text.
//
// A client reports its raw input for the word it is currently typing. The
// input either commits the word (it ends with a space and matches exactly),
// is rejected (it ends with a space but does not match), or is a partial
// update whose mismatched characters are counted as errors.
package cursor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Boundary is the character that commits a completed word.
const Boundary = ' '

// MaxOverflow is how many characters past the target word's length an input
// may carry before it is refused outright.
const MaxOverflow = 32

var (
	ErrInputTooLong   = errors.New("input too long")
	ErrWordsExhausted = errors.New("no word left to type")
)

// Outcome is the decision taken for one input update.
type Outcome int

const (
	// Partial means the input was folded into the current word without committing it.
	Partial Outcome = iota
	// Advanced means the current word was committed.
	Advanced
	// Rejected means the input was discarded and state is unchanged.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Rejected:
		return "rejected"
	default:
		return "partial"
	}
}

// Evaluate decides what input means for target. It does not touch any state.
func Evaluate(target, input string) Outcome {
	if !strings.HasSuffix(input, string(Boundary)) {
		return Partial
	}
	if strings.TrimSpace(input) == "" {
		return Rejected
	}
	if strings.TrimSpace(input) == target {
		return Advanced
	}
	return Rejected
}

// Progress is one player's position in the race text.
type Progress struct {
	WordIndex int
	CharIndex int
	Errors    int

	typed   string
	input   string
	counted map[int]struct{}
}

// Apply folds one raw input update for the current word into p.
func (p *Progress) Apply(words []string, input string) (Outcome, error) {
	if p.WordIndex >= len(words) {
		return Rejected, ErrWordsExhausted
	}
	target := words[p.WordIndex]

	n := utf8.RuneCountInString(input)
	if n > utf8.RuneCountInString(target)+MaxOverflow {
		return Rejected, fmt.Errorf("%w: %d characters for a %d character word", ErrInputTooLong, n, len(target))
	}

	switch Evaluate(target, input) {
	case Rejected:
		return Rejected, nil
	case Advanced:
		p.typed += target + string(Boundary)
		p.WordIndex++
		p.CharIndex = 0
		p.input = ""
		p.counted = nil
		return Advanced, nil
	}

	p.countMismatches(target, input)
	p.CharIndex = n
	p.input = input
	return Partial, nil
}

// countMismatches compares input with target position by position. A position
// is counted at most once for the word, the first time it mismatches.
func (p *Progress) countMismatches(target, input string) {
	want := []rune(target)
	i := 0
	for _, r := range input {
		if i >= len(want) || r != want[i] {
			if p.counted == nil {
				p.counted = make(map[int]struct{})
			}
			if _, seen := p.counted[i]; !seen {
				p.counted[i] = struct{}{}
				p.Errors++
			}
		}
		i++
	}
}

// Committed returns the completed words, each followed by a boundary.
func (p *Progress) Committed() string {
	return p.typed
}

// Input returns the in-progress partial word.
func (p *Progress) Input() string {
	return p.input
}

// Text returns everything typed so far: committed words plus the partial word.
func (p *Progress) Text() string {
	return p.typed + p.input
}

// Complete reports whether the whole of words has been typed. The last word
// does not need a trailing boundary.
func (p *Progress) Complete(words []string) bool {
	if len(words) == 0 {
		return false
	}
	if p.WordIndex >= len(words) {
		return true
	}
	return p.WordIndex == len(words)-1 && p.input == words[len(words)-1]
}

// Reset clears p back to the start of the text.
func (p *Progress) Reset() {
	p.WordIndex = 0
	p.CharIndex = 0
	p.Errors = 0
	p.typed = ""
	p.input = ""
	p.counted = nil
}
