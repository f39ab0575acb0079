package gridfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/sly67/tahoegrid/pkg/wapi"
)

// fakeGrid is a minimal WAPI stand-in for tests: a set of canned envelopes
// keyed by capability, canned content, and recording link/mkdir/upload
// endpoints.
type fakeGrid struct {
	t *testing.T

	envelopes map[string]string // cap -> envelope JSON
	content   map[string]string // cap -> raw bytes

	mkdirCap  string
	uploadCap string
	uploads   int

	links      []linkRequest
	linkStatus int

	envelopeFetches map[string]int
	uptime          float64

	server *httptest.Server
}

type linkRequest struct {
	parent  string
	name    string
	child   string
	replace string
}

func newFakeGrid(t *testing.T) *fakeGrid {
	g := &fakeGrid{
		t:               t,
		envelopes:       map[string]string{},
		content:         map[string]string{},
		linkStatus:      http.StatusOK,
		envelopeFetches: map[string]int{},
		uptime:          42,
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGrid) url() string { return g.server.URL }

func (g *fakeGrid) dial(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := Dial(context.Background(), wapi.Config{BaseURL: g.url()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return fs
}

func (g *fakeGrid) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/statistics":
		fmt.Fprintf(w, `{"stats": {"node.uptime": %g}}`, g.uptime)

	case r.URL.Path == "/uri" && r.Method == http.MethodPost:
		io.WriteString(w, g.mkdirCap)

	case r.URL.Path == "/uri" && r.Method == http.MethodPut:
		g.uploads++
		io.ReadAll(r.Body)
		io.WriteString(w, g.uploadCap)

	case strings.HasPrefix(r.URL.Path, "/uri/"):
		rest := strings.TrimPrefix(r.URL.Path, "/uri/")
		if idx := strings.Index(rest, "/"); idx >= 0 && r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			g.links = append(g.links, linkRequest{
				parent:  rest[:idx],
				name:    rest[idx+1:],
				child:   string(body),
				replace: r.URL.Query().Get("replace"),
			})
			if g.linkStatus != http.StatusOK {
				http.Error(w, "link refused", g.linkStatus)
			}
			return
		}

		if r.URL.Query().Get("t") == "json" {
			g.envelopeFetches[rest]++
			env, ok := g.envelopes[rest]
			if !ok {
				io.WriteString(w, `["unknown", {}]`)
				return
			}
			io.WriteString(w, env)
			return
		}

		content, ok := g.content[rest]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if rng := r.Header.Get("Range"); rng != "" {
			w.WriteHeader(http.StatusPartialContent)
			io.WriteString(w, sliceRange(content, rng))
			return
		}
		io.WriteString(w, content)

	default:
		g.t.Errorf("fake grid: unexpected request %s %s", r.Method, r.URL)
		http.NotFound(w, r)
	}
}

// sliceRange applies a "bytes=a-b" header to content, close enough for
// tests.
func sliceRange(content, header string) string {
	rangeSpec := strings.TrimPrefix(header, "bytes=")
	dash := strings.Index(rangeSpec, "-")
	if dash < 0 {
		return content
	}
	start, _ := strconv.ParseInt(rangeSpec[:dash], 10, 64)
	if start >= int64(len(content)) {
		return ""
	}
	end := int64(len(content)) - 1
	if rangeSpec[dash+1:] != "" {
		end, _ = strconv.ParseInt(rangeSpec[dash+1:], 10, 64)
		if end >= int64(len(content)) {
			end = int64(len(content)) - 1
		}
	}
	return content[start : end+1]
}
