package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/quizduel/pkg/duelproto"
)

var ErrInvalidQuestion = errors.New("invalid question")

// Question is a four-option multiple choice item. CorrectOption is one of A, B, C, D.
type Question struct {
	ID            int64             `yaml:"id"`
	Title         string            `yaml:"question"`
	Options       map[string]string `yaml:"options"`
	CorrectOption string            `yaml:"answer"`
	Category      string            `yaml:"category"`
}

var labels = []string{"A", "B", "C", "D"}

// Source is what the duel loop needs from the question bank.
type Source interface {
	Random(ctx context.Context, n int) ([]Question, error)
	// CorrectOption returns ok=false for an unknown id.
	CorrectOption(ctx context.Context, id int64) (option string, ok bool, err error)
}

// Normalize upper-cases option labels and the answer and trims whitespace.
func (q *Question) Normalize() {
	q.Title = strings.TrimSpace(q.Title)
	q.Category = strings.TrimSpace(q.Category)
	q.CorrectOption = strings.ToUpper(strings.TrimSpace(q.CorrectOption))
	opts := make(map[string]string, len(q.Options))
	for k, v := range q.Options {
		opts[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	q.Options = opts
}

func (q Question) Validate() error {
	if q.Title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidQuestion)
	}
	for _, l := range labels {
		if strings.TrimSpace(q.Options[l]) == "" {
			return fmt.Errorf("%w: option %s missing", ErrInvalidQuestion, l)
		}
	}
	if !IsLabel(q.CorrectOption) {
		return fmt.Errorf("%w: answer %q", ErrInvalidQuestion, q.CorrectOption)
	}
	return nil
}

func IsLabel(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, l := range labels {
		if s == l {
			return true
		}
	}
	return false
}

// Matches compares a submitted answer with the correct label, ignoring case and
// surrounding whitespace.
func Matches(correct, answer string) bool {
	c := strings.TrimSpace(correct)
	return c != "" && strings.EqualFold(c, strings.TrimSpace(answer))
}

// Public strips the answer before the question goes to clients.
func (q Question) Public() duelproto.Question {
	opts := make(map[string]string, len(labels))
	for _, l := range labels {
		opts[l] = q.Options[l]
	}
	return duelproto.Question{ID: q.ID, Question: q.Title, Options: opts, Category: q.Category}
}

func PublicAll(qs []Question) []duelproto.Question {
	out := make([]duelproto.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Public())
	}
	return out
}
