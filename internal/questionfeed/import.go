package questionfeed

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/quizduel/internal/questions"
)

// BatchSize is both the page length requested and the insert batch size.
const BatchSize = 100

var CSBench = Dataset{Name: "lmms-lab/CSBench_MCQ", Config: "default", Split: "mcq"}

type Stats struct {
	Scanned  int
	Accepted int
}

// FromRow maps one dataset row to a question. Rows that are not English or whose
// answer is not one of A-D are rejected.
func FromRow(row map[string]any) (questions.Question, bool) {
	if str(row["Language"]) != "English" {
		return questions.Question{}, false
	}
	answer := strings.TrimSpace(str(row["Answer"]))
	if !questions.IsLabel(answer) || answer != strings.ToUpper(answer) {
		return questions.Question{}, false
	}
	q := questions.Question{
		Title: str(row["Question"]),
		Options: map[string]string{
			"A": str(row["A"]),
			"B": str(row["B"]),
			"C": str(row["C"]),
			"D": str(row["D"]),
		},
		CorrectOption: answer,
		Category:      str(row["Domain"]),
	}
	q.Normalize()
	if q.Validate() != nil {
		return questions.Question{}, false
	}
	return q, true
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Import pages through ds and hands accepted questions to sink in batches of BatchSize.
func (c *Client) Import(ctx context.Context, ds Dataset, sink func(context.Context, []questions.Question) error) (Stats, error) {
	var (
		st    Stats
		batch = make([]questions.Question, 0, BatchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink(ctx, batch); err != nil {
			return err
		}
		batch = make([]questions.Question, 0, BatchSize)
		return nil
	}

	for offset := 0; ; offset += BatchSize {
		page, err := c.Rows(ctx, ds, offset, BatchSize)
		if err != nil {
			return st, fmt.Errorf("rows at offset %d: %w", offset, err)
		}
		for _, r := range page.Rows {
			st.Scanned++
			q, ok := FromRow(r.Row)
			if !ok {
				continue
			}
			st.Accepted++
			batch = append(batch, q)
			if len(batch) == BatchSize {
				if err := flush(); err != nil {
					return st, err
				}
			}
		}
		if len(page.Rows) < BatchSize || offset+len(page.Rows) >= page.NumRowsTotal {
			break
		}
	}
	return st, flush()
}
