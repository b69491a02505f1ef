package words

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Dictionary checks guesses against a dictionary lookup API
// (dictionaryapi.dev shape: GET <base>/<word> → 200 or 404).
//
// Lookups fail open: a network error or unexpected status accepts the word,
// so an outage never blocks play.
type Dictionary struct {
	BaseURL string
	Client  *http.Client
}

// NewDictionary returns a checker with a 2s lookup timeout.
func NewDictionary(baseURL string) *Dictionary {
	return &Dictionary{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// IsValidWord performs the shape checks locally before asking the API.
// The lookup is bounded by ctx and the client timeout.
func (d *Dictionary) IsValidWord(ctx context.Context, text string, length int) bool {
	w := strings.ToUpper(strings.TrimSpace(text))
	if len(w) != length || !isAlpha(w) {
		return false
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := client.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/"+url.PathEscape(strings.ToLower(w)), nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", "wordly/1.0")

	res, err := client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("word", w).Msg("dictionary lookup failed; accepting word")
		return true
	}
	defer res.Body.Close()
	return res.StatusCode != http.StatusNotFound
}
