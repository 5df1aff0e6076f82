package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
)

func TestForNames(t *testing.T) {
	fetchers, err := ForNames([]string{"etymonline", "wiktionary"}, time.Second)
	require.NoError(t, err)
	require.Len(t, fetchers, 2)
	assert.Equal(t, "etymonline", fetchers[0].Name())
	assert.Equal(t, "wiktionary", fetchers[1].Name())

	_, err = ForNames([]string{"urbandictionary"}, time.Second)
	assert.Error(t, err)
}

func TestEtymonlineFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/word/perfidy" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body>
			<div class="word--C9UPa">
				<section>1590s, from French perfidie, from Latin perfidia "faithlessness"</section>
			</div>
		</body></html>`))
	}))
	defer server.Close()

	f := NewEtymonline(time.Second)
	f.baseURL = server.URL

	res, err := f.Fetch(context.Background(), "perfidy")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "etymonline", res.SourceName)
	assert.Contains(t, res.Text, "from Latin perfidia")
	assert.Equal(t, server.URL+"/word/perfidy", res.URL)

	missing, err := f.Fetch(context.Background(), "zzxqj")
	require.NoError(t, err)
	assert.Nil(t, missing, "404 means confirmed absence, not an error")
}

func TestEtymonlineEmptyPageIsAbsence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div>nothing here</div></body></html>`))
	}))
	defer server.Close()

	f := NewEtymonline(time.Second)
	f.baseURL = server.URL

	res, err := f.Fetch(context.Background(), "perfidy")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestWiktionaryFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/w/api.php", r.URL.Path)
		require.Equal(t, "perfidy", r.URL.Query().Get("titles"))
		w.Write([]byte(`{"query":{"pages":[{"title":"perfidy","extract":
			"== English ==\n=== Etymology ===\nFrom Latin perfidia.\n=== Noun ===\nperfidy (countable)"}]}}`))
	}))
	defer server.Close()

	f := NewWiktionary(time.Second)
	f.baseURL = server.URL

	res, err := f.Fetch(context.Background(), "perfidy")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Contains(t, res.Text, "From Latin perfidia")
	assert.NotContains(t, res.Text, "countable", "non-etymology sections are trimmed")
}

func TestWiktionaryMissingPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"pages":[{"title":"zzxqj","missing":true}]}}`))
	}))
	defer server.Close()

	f := NewWiktionary(time.Second)
	f.baseURL = server.URL

	res, err := f.Fetch(context.Background(), "zzxqj")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestTimeoutIsRetryableUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	f := NewWiktionary(20 * time.Millisecond)
	f.baseURL = server.URL

	res, err := f.Fetch(context.Background(), "slow")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, etymerrors.IsCode(err, etymerrors.ErrCodeUpstreamTimeout))
	assert.True(t, etymerrors.IsRetryable(err))
}

func TestEtymologySections(t *testing.T) {
	extract := strings.Join([]string{
		"== English ==",
		"=== Etymology 1 ===",
		"From Old English bitan.",
		"==== Verb ====",
		"bite (third-person singular bites)",
		"=== Etymology 2 ===",
		"Clipping of bitterness.",
		"=== Pronunciation ===",
		"/baɪt/",
	}, "\n")

	got := etymologySections(extract)
	assert.Contains(t, got, "From Old English bitan.")
	assert.Contains(t, got, "Clipping of bitterness.")
	assert.NotContains(t, got, "/baɪt/")
}

func TestCleanTextTruncates(t *testing.T) {
	long := strings.Repeat("a", maxSourceBytes+100)
	assert.Len(t, cleanText(long), maxSourceBytes)

	assert.Equal(t, "a b\nc", cleanText("a   b\n\n\n\n   c   "))
}
