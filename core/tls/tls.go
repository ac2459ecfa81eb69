// Package tls implements component H: a TLS accept stub layered on
// top of the same Connection abstraction the plain-TCP reactor uses.
// crypto/tls.Conn does not expose a raw fd a poller can register, so
// this listener runs its own accept loop on blocking net.Conn values
// and hands each handshaked connection to the server's ordinary
// request-handling loop via netconn.NewFromNetConn (spec.md §4.H,
// "async handshake behind a dedicated header-phase timer" realized as
// a net.Conn deadline rather than poller registration).
package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/wsgiboost/core/netconn"
)

// Handler processes one handshaked Connection, matching
// reactor.Handler's shape so the server façade can pass the same
// per-connection loop to both the plain and TLS listeners.
type Handler func(c *netconn.Connection)

// Listener accepts TLS connections and dispatches handshaked ones to
// Handle.
type Listener struct {
	ln      net.Listener
	handle  Handler
	headerTimeout  time.Duration
	contentTimeout time.Duration
	log     *logrus.Logger

	wg      sync.WaitGroup
	stopped chan struct{}
}

// Listen binds addr with cfg and starts accepting; connections are
// handshaked and dispatched to handle on their own goroutine.
func Listen(addr string, cfg *tls.Config, handle Handler, headerTimeout, contentTimeout time.Duration, log *logrus.Logger) (*Listener, error) {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Listener{
		ln:             ln,
		handle:         handle,
		headerTimeout:  headerTimeout,
		contentTimeout: contentTimeout,
		log:            log,
		stopped:        make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stopped:
				return
			default:
				continue
			}
		}
		go l.serve(conn)
	}
}

// serve arms a plain net.Conn deadline as the header-phase timer
// substitute for the handshake itself (no poller registration is
// possible here), then hands the handshaked connection to handle
// through the same Connection abstraction the reactor path uses.
func (l *Listener) serve(nc net.Conn) {
	nc.SetDeadline(time.Now().Add(l.headerTimeout))
	if tlsConn, ok := nc.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(context.Background()); err != nil {
			l.log.WithError(err).Warn("tls: handshake failed")
			nc.Close()
			return
		}
	}
	nc.SetDeadline(time.Time{})

	conn := netconn.NewFromNetConn(nc, l.headerTimeout, l.contentTimeout)
	l.handle(conn)
}

// Stop closes the listener; in-flight connections are left to their
// own deadline timers.
func (l *Listener) Stop() {
	select {
	case <-l.stopped:
	default:
		close(l.stopped)
	}
	l.ln.Close()
	l.wg.Wait()
}

// LoadConfig builds a tls.Config from a certificate/key pair, decoding
// an encrypted private key with passphrase if the PEM block carries
// the classic Proc-Type/DEK-Info headers. No third-party package in
// this corpus offers an alternative to the stdlib decrypt helper for
// that legacy format (see DESIGN.md), so this one component uses it
// directly.
func LoadConfig(certFile, keyFile, passphrase string) (*tls.Config, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}

	if passphrase != "" {
		keyPEM, err = decryptKey(keyPEM, passphrase)
		if err != nil {
			return nil, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func decryptKey(keyPEM []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("tls: no PEM block found in key file")
	}
	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy format, no replacement in this pack's dependency set
		return keyPEM, nil
	}
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("tls: decrypting private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}
