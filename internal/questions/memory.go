package questions

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

// Bank is an in-memory question source for local runs without Postgres.
type Bank struct {
	mu   sync.RWMutex
	list []Question
	byID map[int64]Question
}

type bankFile struct {
	Questions []Question `yaml:"questions"`
}

func NewBank(qs []Question) (*Bank, error) {
	b := &Bank{byID: make(map[int64]Question, len(qs))}
	for i, q := range qs {
		q.Normalize()
		if q.ID == 0 {
			q.ID = int64(i + 1)
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", q.ID, err)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("question %d: duplicate id", q.ID)
		}
		b.byID[q.ID] = q
		b.list = append(b.list, q)
	}
	return b, nil
}

// ParseYAML decodes a `questions:` document.
func ParseYAML(raw []byte) ([]Question, error) {
	var f bankFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	return f.Questions, nil
}

func LoadBankFile(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	qs, err := ParseYAML(raw)
	if err != nil {
		return nil, err
	}
	return NewBank(qs)
}

func (b *Bank) Random(_ context.Context, n int) ([]Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.list) {
		n = len(b.list)
	}
	out := make([]Question, 0, n)
	for _, i := range rand.Perm(len(b.list))[:n] {
		out = append(out, b.list[i])
	}
	return out, nil
}

func (b *Bank) CorrectOption(_ context.Context, id int64) (string, bool, error) {
	b.mu.RLock()
	q, ok := b.byID[id]
	b.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	return q.CorrectOption, true, nil
}

func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.list)
}
