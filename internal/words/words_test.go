package words

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	ctx := context.Background()
	l, err := Load(Files{})
	require.NoError(t, err)

	cands, allowed := l.Stats()
	assert.Greater(t, cands, 10)
	assert.Greater(t, allowed, cands)
	assert.True(t, l.IsValidWord(ctx, "crane", 5), "candidates are always allowed")
	assert.True(t, l.IsValidWord(ctx, "LLAMA", 5))
}

func TestLoadFromFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cpath := filepath.Join(dir, "candidates.txt")
	apath := filepath.Join(dir, "allowed.txt")
	require.NoError(t, os.WriteFile(cpath, []byte("# comment\nslate A grey rock.\n\n  c++ \nbogus!word\n"), 0o644))
	require.NoError(t, os.WriteFile(apath, []byte("tacit\nno-pe\n"), 0o644))

	l, err := Load(Files{Candidates: cpath, Allowed: apath})
	require.NoError(t, err)

	assert.Equal(t, 3, l.Len(), "SLATE, C and BOGUSWORD survive sanitizing")
	assert.Equal(t, Candidate{Word: "SLATE", Definition: "A grey rock."}, l.At(0))
	assert.True(t, l.IsValidWord(ctx, "TACIT", 5))
	assert.False(t, l.IsValidWord(ctx, "NOPE", 4))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Files{Candidates: filepath.Join(t.TempDir(), "missing.txt")})
	assert.Error(t, err)
}

func TestNewFallsBackToCrate(t *testing.T) {
	l := New(nil, nil)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "CRATE", l.Pick("").Word)
	assert.Equal(t, "CRATE", l.Pick("CRATE").Word, "sole candidate is returned even when excluded")
}

func TestIsValidWord(t *testing.T) {
	ctx := context.Background()
	l := New([]Candidate{{Word: "crane"}}, []string{"crate", "slate"})

	tests := []struct {
		text   string
		length int
		want   bool
	}{
		{"CRANE", 5, true},
		{"crate", 5, true},
		{" Slate ", 5, true},
		{"CRANE", 6, false},
		{"CR4NE", 5, false},
		{"ZZZZZ", 5, false},
		{"", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, l.IsValidWord(ctx, tt.text, tt.length))
		})
	}
}

func TestPickExcludesPrevious(t *testing.T) {
	l := New([]Candidate{{Word: "CRANE"}, {Word: "SLATE"}}, nil)
	for i := 0; i < 50; i++ {
		assert.Equal(t, "SLATE", l.Pick("crane").Word)
	}
}

func TestAtWraps(t *testing.T) {
	l := New([]Candidate{{Word: "CRANE"}, {Word: "SLATE"}}, nil)
	assert.Equal(t, "SLATE", l.At(3).Word)
	assert.Equal(t, "SLATE", l.At(-1).Word)
}

func TestParseCandidateLine(t *testing.T) {
	c, err := ParseCandidateLine("  crane  A lifting machine.  ")
	require.NoError(t, err)
	assert.Equal(t, "CRANE", c.Word)
	assert.Equal(t, "A lifting machine.", c.Definition)

	_, err = ParseCandidateLine("123 nothing")
	assert.Error(t, err)
}

func TestDictionary(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "wordly/1.0", r.Header.Get("User-Agent"))
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "crane":
			w.WriteHeader(http.StatusOK)
		case "zzzzz":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	d := NewDictionary(srv.URL + "/")
	assert.True(t, d.IsValidWord(ctx, "CRANE", 5))
	assert.False(t, d.IsValidWord(ctx, "ZZZZZ", 5))
	assert.True(t, d.IsValidWord(ctx, "QWERT", 5), "unexpected status fails open")
	assert.False(t, d.IsValidWord(ctx, "CR4NE", 5))
	assert.Equal(t, int32(3), calls.Load(), "shape failures never reach the API")
}

func TestDictionaryUnreachableFailsOpen(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.True(t, NewDictionary(url).IsValidWord(ctx, "CRANE", 5))
}

func TestDictionaryHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.True(t, NewDictionary(srv.URL).IsValidWord(ctx, "CRANE", 5), "a cancelled lookup fails open")
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnyOf(t *testing.T) {
	ctx := context.Background()
	a := New([]Candidate{{Word: "CRANE"}}, nil)
	b := New([]Candidate{{Word: "SLATE"}}, nil)
	c := AnyOf(a, b)
	assert.True(t, c.IsValidWord(ctx, "CRANE", 5))
	assert.True(t, c.IsValidWord(ctx, "SLATE", 5))
	assert.False(t, c.IsValidWord(ctx, "TACIT", 5))
}

func TestOfLength(t *testing.T) {
	ctx := context.Background()
	l := New([]Candidate{{Word: "CRANE"}, {Word: "TOAST"}, {Word: "CRANES"}}, []string{"SLATE", "PLANETS"})
	five, err := l.OfLength(5)
	require.NoError(t, err)
	assert.Equal(t, 2, five.Len())
	assert.True(t, five.IsValidWord(ctx, "SLATE", 5))
	assert.False(t, five.IsValidWord(ctx, "CRANES", 6))

	six, err := l.OfLength(6)
	require.NoError(t, err)
	assert.Equal(t, "CRANES", six.At(0).Word)

	_, err = l.OfLength(7)
	assert.Error(t, err)
}
