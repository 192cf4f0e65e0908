package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const certCheckInterval = time.Minute

// CertLoader serves a TLS certificate from disk and picks up renewed files without a
// restart. The files are checked at most once per certCheckInterval.
type CertLoader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	cert      *tls.Certificate
	loadedAt  time.Time
	lastCheck time.Time
}

// NewCertLoader loads the key pair and returns a CertLoader for it.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loader := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger.With("component", "cert_loader"),
		now:      time.Now,
	}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// TLSConfig returns a tls.Config that serves the loaded certificate.
func (l *CertLoader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.GetCertificate,
	}
}

// GetCertificate is a callback for tls.Config.GetCertificate.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	if l.now().Sub(l.lastCheck) < certCheckInterval {
		defer l.mu.RUnlock()
		return l.cert, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another handshake may have checked while we waited for the lock
	if l.now().Sub(l.lastCheck) < certCheckInterval {
		return l.cert, nil
	}
	l.lastCheck = l.now()

	if l.changed() {
		if err := l.reload(); err != nil {
			// Keep serving the old certificate
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.cert, nil
}

// changed reports whether either file was modified after the last load.
func (l *CertLoader) changed() bool {
	for _, path := range []string{l.certFile, l.keyFile} {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Error("failed to stat certificate file", "path", path, "error", err)
			return false
		}
		if info.ModTime().After(l.loadedAt) {
			return true
		}
	}
	return false
}

func (l *CertLoader) reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.cert = &cert
	l.loadedAt = l.now()
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
