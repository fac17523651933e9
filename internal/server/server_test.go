package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeyPair writes a self-signed certificate for 127.0.0.1 and returns
// the file paths and the parsed certificate.
func writeKeyPair(t *testing.T, dir string) (certFile, keyFile string, cert *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err = x509.ParseCertificate(der)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, DefaultCertFile)
	keyFile = filepath.Join(dir, DefaultKeyFile)
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile, cert
}

// newTestServer lays out a web build next to a secret file outside root.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "www")
	files := map[string]string{
		"emu.html":          "<html>emu</html>",
		"emu.js":            "console.log(1)",
		"emu.wasm":          "\x00asm",
		"games/index.html":  "<html>games</html>",
		"roms/tetris.gb":    "rom",
		"roms/zelda dx.gbc": "rom",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.txt"), []byte("secret"), 0o644))

	certFile, keyFile, _ := writeKeyPair(t, t.TempDir())
	cfg := DefaultConfig(root)
	cfg.CertFile, cfg.KeyFile = certFile, keyFile
	s, err := New(cfg)
	require.NoError(t, err)
	return s, base
}

func get(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandlerServesFiles(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, http.MethodGet, "/emu.wasm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/wasm", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x00asm", rec.Body.String())
	assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "require-corp", rec.Header().Get("Cross-Origin-Embedder-Policy"))

	rec = get(t, h, http.MethodGet, "/emu.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = get(t, h, http.MethodHead, "/emu.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandlerDirectories(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, http.MethodGet, "/games/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>games</html>", rec.Body.String())

	rec = get(t, h, http.MethodGet, "/games")
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/games/", rec.Header().Get("Location"))

	rec = get(t, h, http.MethodGet, "/roms/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="tetris.gb"`)
	assert.Contains(t, rec.Body.String(), `href="zelda%20dx.gbc"`)
}

func TestHandlerRejectsTraversal(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	for _, target := range []string{
		"/../secret.txt",
		"/roms/../../secret.txt",
		"/%2e%2e/secret.txt",
		"/games/%2E%2E/%2E%2E/secret.txt",
	} {
		rec := get(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "secret", target)
	}

	// Traversal that stays inside the root is served.
	rec := get(t, h, http.MethodGet, "/roms/../emu.js")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	s, base := newTestServer(t)
	require.NoError(t, os.Symlink(filepath.Join(base, "secret.txt"), filepath.Join(s.Root(), "leak.txt")))
	require.NoError(t, os.Symlink(filepath.Join(s.Root(), "emu.js"), filepath.Join(s.Root(), "alias.js")))

	rec := get(t, s.Handler(), http.MethodGet, "/leak.txt")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = get(t, s.Handler(), http.MethodGet, "/alias.js")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerNotFoundAndMethods(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/missing.wasm").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/roms/tetris.gb/x").Code)

	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := get(t, h, m, "/emu.js")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
		assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
	}
}

func TestIsolationHeadersOptional(t *testing.T) {
	s, _ := newTestServer(t)
	s.isolation = false
	rec := get(t, s.Handler(), http.MethodGet, "/emu.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Cross-Origin-Opener-Policy"))
}

func TestNewConfigurationErrors(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, _ := writeKeyPair(t, dir)
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	bogus := filepath.Join(dir, "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o644))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty root", Config{CertFile: certFile, KeyFile: keyFile}},
		{"missing root", Config{Root: filepath.Join(dir, "nope"), CertFile: certFile, KeyFile: keyFile}},
		{"root is a file", Config{Root: file, CertFile: certFile, KeyFile: keyFile}},
		{"missing cert", Config{Root: dir, CertFile: filepath.Join(dir, "none.pem"), KeyFile: keyFile}},
		{"invalid cert", Config{Root: dir, CertFile: bogus, KeyFile: keyFile}},
		{"swapped pair", Config{Root: dir, CertFile: keyFile, KeyFile: certFile}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var cfgErr *errs.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("out")
	assert.Equal(t, "0.0.0.0:4443", cfg.Addr)
	assert.Equal(t, "localhost.pem", cfg.CertFile)
	assert.Equal(t, "localhost-key.pem", cfg.KeyFile)
	assert.True(t, cfg.Isolation)
}

func TestServeTLS(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "emu.js"), []byte("ok"), 0o644))
	certFile, keyFile, cert := writeKeyPair(t, t.TempDir())

	s, err := New(Config{Root: root, Addr: "127.0.0.1:0", CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(l)
	t.Cleanup(func() { l.Close() })

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig:   &tls.Config{RootCAs: pool},
			ForceAttemptHTTP2: true,
		},
	}

	// Two clients at once; neither blocks the other.
	results := make(chan error, 2)
	for range 2 {
		go func() {
			resp, err := client.Get("https://" + l.Addr().String() + "/emu.js")
			if err != nil {
				results <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err == nil && (string(body) != "ok" || resp.ProtoMajor != 2) {
				err = &unexpected{proto: resp.Proto, body: string(body)}
			}
			results <- err
		}()
	}
	for range 2 {
		require.NoError(t, <-results)
	}

	// Plain TLS 1.1 is refused.
	_, err = tls.Dial("tcp", l.Addr().String(), &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS10, MaxVersion: tls.VersionTLS11})
	assert.Error(t, err)
}

type unexpected struct{ proto, body string }

func (e *unexpected) Error() string { return "unexpected response " + e.proto + ": " + e.body }
