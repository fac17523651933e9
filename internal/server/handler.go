package server

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/qiniu/x/log"
)

// contentTypes complements the mime table for web build outputs.
var contentTypes = map[string]string{
	".wasm": "application/wasm",
	".data": "application/octet-stream",
	".js":   "text/javascript; charset=utf-8",
	".mjs":  "text/javascript; charset=utf-8",
}

// Handler returns the request handler of s.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		s.serve(rw, r)
		log.Infof("%s %s %s %d %s", r.RemoteAddr, r.Method, r.URL.Path, rw.status, time.Since(start).Round(time.Microsecond))
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.isolation {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	}

	name, status := s.resolve(r.URL.Path)
	if status != http.StatusOK {
		http.Error(w, fmt.Sprintf("%d %s", status, strings.ToLower(http.StatusText(status))), status)
		return
	}
	fi, err := os.Stat(name)
	if err != nil {
		http.Error(w, "404 not found", http.StatusNotFound)
		return
	}
	if fi.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, path.Base(r.URL.Path)+"/", http.StatusMovedPermanently)
			return
		}
		index := filepath.Join(name, "index.html")
		if ifi, err := os.Stat(index); err == nil && ifi.Mode().IsRegular() {
			s.serveFile(w, r, index)
			return
		}
		s.serveListing(w, r, name)
		return
	}
	s.serveFile(w, r, name)
}

// resolve maps a request path to a file below the root. Paths that leave
// the root, lexically or through a symlink, are forbidden rather than
// cleaned back into it.
func (s *Server) resolve(urlPath string) (string, int) {
	if strings.ContainsRune(urlPath, 0) || strings.Contains(urlPath, `\`) {
		return "", http.StatusBadRequest
	}
	name := filepath.Join(s.root, filepath.FromSlash(urlPath))
	if !within(s.root, name) {
		return "", http.StatusForbidden
	}
	resolved, err := filepath.EvalSymlinks(name)
	if err != nil {
		return "", http.StatusNotFound
	}
	if !within(s.root, resolved) {
		return "", http.StatusForbidden
	}
	return resolved, http.StatusOK
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		http.Error(w, "404 not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		http.Error(w, "404 not found", http.StatusNotFound)
		return
	}
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		http.Error(w, "404 not found", http.StatusNotFound)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	slices.Sort(names)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	title := html.EscapeString(r.URL.Path)
	fmt.Fprintf(w, "<!doctype html>\n<title>%s</title>\n<h1>%s</h1>\n<ul>\n", title, title)
	for _, name := range names {
		link := url.URL{Path: name}
		fmt.Fprintf(w, "<li><a href=\"%s\">%s</a></li>\n", link.String(), html.EscapeString(name))
	}
	fmt.Fprint(w, "</ul>\n")
}

// within reports whether name is dir or below it.
func within(dir, name string) bool {
	rel, err := filepath.Rel(dir, name)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
