package questionfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/quizduel/internal/questions"
)

const totalRows = 250

func fakeRow(i int) map[string]any {
	lang := "English"
	if i%5 == 0 {
		lang = "Chinese"
	}
	answer := string(rune('A' + i%4))
	if i%7 == 0 {
		answer = "E"
	}
	return map[string]any{
		"Question": fmt.Sprintf("question %d", i),
		"A":        i,
		"B":        "two",
		"C":        "three",
		"D":        "four",
		"Answer":   answer,
		"Domain":   "Systems",
		"Language": lang,
	}
}

func wantAccepted() int {
	n := 0
	for i := 0; i < totalRows; i++ {
		if i%5 != 0 && i%7 != 0 {
			n++
		}
	}
	return n
}

func startRowsServer(t *testing.T, failures int32) (*fasthttp.Client, *atomic.Int32) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	var hits atomic.Int32
	remaining := failures
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		if atomic.AddInt32(&remaining, -1) >= 0 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		if string(ctx.QueryArgs().Peek("dataset")) != CSBench.Name {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		offset := ctx.QueryArgs().GetUintOrZero("offset")
		length := ctx.QueryArgs().GetUintOrZero("length")
		page := map[string]any{"num_rows_total": totalRows}
		rows := []map[string]any{}
		for i := offset; i < offset+length && i < totalRows; i++ {
			rows = append(rows, map[string]any{"row_idx": i, "row": fakeRow(i)})
		}
		page["rows"] = rows
		b, _ := json.Marshal(page)
		ctx.SetContentType("application/json")
		ctx.SetBody(b)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return hc, &hits
}

func TestImportFiltersAndBatches(t *testing.T) {
	hc, _ := startRowsServer(t, 1)
	c := NewClient("http://rows.test", WithHTTPClient(hc), WithRetry(3))

	var sizes []int
	var all []questions.Question
	st, err := c.Import(context.Background(), CSBench, func(_ context.Context, qs []questions.Question) error {
		sizes = append(sizes, len(qs))
		all = append(all, qs...)
		return nil
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if st.Scanned != totalRows || st.Accepted != wantAccepted() || len(all) != wantAccepted() {
		t.Fatalf("stats = %+v, got %d questions, want %d", st, len(all), wantAccepted())
	}
	for i, n := range sizes[:len(sizes)-1] {
		if n != BatchSize {
			t.Fatalf("batch %d size %d", i, n)
		}
	}
	if all[0].Options["A"] != "1" || all[0].Category != "Systems" {
		t.Fatalf("first = %+v", all[0])
	}
}

func TestImportStopsOnSinkError(t *testing.T) {
	hc, _ := startRowsServer(t, 0)
	c := NewClient("http://rows.test", WithHTTPClient(hc))
	boom := errors.New("boom")
	_, err := c.Import(context.Background(), CSBench, func(context.Context, []questions.Question) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRowsGivesUpAfterRetries(t *testing.T) {
	hc, hits := startRowsServer(t, 10)
	c := NewClient("http://rows.test", WithHTTPClient(hc), WithRetry(2))
	_, err := c.Rows(context.Background(), CSBench, 0, 10)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("err = %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2", hits.Load())
	}
}

func TestFromRow(t *testing.T) {
	if _, ok := FromRow(map[string]any{"Language": "English", "Answer": "a", "Question": "q", "A": "1", "B": "2", "C": "3", "D": "4"}); ok {
		t.Fatalf("lower-case answer accepted")
	}
	if _, ok := FromRow(map[string]any{"Language": "English", "Answer": "B", "Question": "q", "A": "1", "B": "2", "C": "3"}); ok {
		t.Fatalf("missing option accepted")
	}
	q, ok := FromRow(map[string]any{"Language": "English", "Answer": " C ", "Question": "q", "A": "1", "B": "2", "C": 3.5, "D": "4", "Domain": nil})
	if !ok || q.CorrectOption != "C" || q.Options["C"] != "3.5" {
		t.Fatalf("FromRow = %+v, %v", q, ok)
	}
}
