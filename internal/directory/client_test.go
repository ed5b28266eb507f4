package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeService is an in-memory stand-in for the token service.
type fakeService struct {
	mu     sync.Mutex
	tokens []string
	next   string
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":[`))
		for i, t := range s.tokens {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			_, _ = w.Write([]byte(`"` + t + `"`))
		}
		_, _ = w.Write([]byte(`]}`))
	})
	mux.HandleFunc("/api/create_token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tokens = append(s.tokens, s.next)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + s.next + `"}`))
	})
	mux.HandleFunc("/api/tokens/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		token := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
		for i, t := range s.tokens {
			if t == token {
				s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func newFakeService(t *testing.T, next string) (*fakeService, *Client) {
	t.Helper()
	svc := &fakeService{next: next}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	return svc, New(srv.URL)
}

func TestCreateThenListIncludesToken(t *testing.T) {
	t.Parallel()

	_, client := newFakeService(t, "a3f9b2")
	ctx := context.Background()

	tok := client.Create(ctx)
	assert.Equal(t, "a3f9b2", tok)
	assert.Contains(t, client.List(ctx), "a3f9b2")
}

func TestDelete_KnownAndUnknown(t *testing.T) {
	t.Parallel()

	_, client := newFakeService(t, "a3f9b2")
	ctx := context.Background()

	client.Create(ctx)
	assert.True(t, client.Delete(ctx, "a3f9b2"))
	assert.False(t, client.Delete(ctx, "a3f9b2"), "second delete should report false")
	assert.False(t, client.Delete(ctx, "nope"), "unknown token should report false")
}

func TestList_FailureMeansNoTokens(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL)
	assert.Nil(t, client.List(context.Background()))
}

func TestCreate_NetworkFailureMeansEmpty(t *testing.T) {
	t.Parallel()

	client := New("http://127.0.0.1:1")
	assert.Empty(t, client.Create(context.Background()))
	assert.False(t, client.Delete(context.Background(), "x"))
}

func TestList_MalformedBodyMeansNoTokens(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL)
	assert.Nil(t, client.List(context.Background()))
}
