package remote

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

const alpnProtocol = "substrate-remote"

// maxFrameBytes bounds a single envelope frame to keep a misbehaving peer
// from forcing an unbounded allocation.
const maxFrameBytes = 64 << 20

// QUICTransport carries envelopes over QUIC streams. Each Send opens a fresh
// unidirectional exchange: one stream, one length-prefixed frame, close.
// Connections to peers are cached and redialed on failure.
type QUICTransport struct {
	TLS   *tls.Config // server credentials; ClientTLS is used for dialing
	Codec Codec

	addr     string
	handler  Handler
	listener *quic.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	connMutex sync.Mutex
	conns     map[string]*quic.Conn

	mutex sync.Mutex
}

func (t *QUICTransport) Start(address string, handler Handler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.listener != nil {
		return fmt.Errorf("transport already started")
	}
	if t.Codec == nil {
		t.Codec = JSONCodec{}
	}
	tlsConf := t.TLS
	if tlsConf == nil {
		generated, err := SelfSignedTLS()
		if err != nil {
			return err
		}
		tlsConf = generated
	}

	listener, err := quic.ListenAddr(address, tlsConf, nil)
	if err != nil {
		return err
	}
	t.listener = listener
	t.addr = listener.Addr().String()
	t.handler = handler
	t.conns = make(map[string]*quic.Conn)
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *QUICTransport) Stop() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.listener == nil {
		return nil
	}
	t.cancel()
	err := t.listener.Close()
	t.listener = nil

	t.connMutex.Lock()
	for _, conn := range t.conns {
		_ = conn.CloseWithError(0, "shutdown")
	}
	t.conns = nil
	t.connMutex.Unlock()

	t.wg.Wait()
	t.addr = ""
	t.handler = nil
	return err
}

func (t *QUICTransport) Address() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.addr
}

func (t *QUICTransport) Send(to string, env Envelope) error {
	data, err := t.codec().Marshal(env)
	if err != nil {
		return err
	}
	if len(data) > maxFrameBytes {
		return fmt.Errorf("envelope exceeds frame limit: %d bytes", len(data))
	}

	conn, err := t.connTo(to)
	if err != nil {
		return err
	}
	if err := t.writeFrame(conn, data); err != nil {
		// The cached connection may have gone stale; redial once.
		t.dropConn(to, conn)
		conn, err = t.connTo(to)
		if err != nil {
			return err
		}
		return t.writeFrame(conn, data)
	}
	return nil
}

func (t *QUICTransport) codec() Codec {
	if t.Codec == nil {
		return JSONCodec{}
	}
	return t.Codec
}

func (t *QUICTransport) writeFrame(conn *quic.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return err
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := stream.Write(prefix[:]); err != nil {
		stream.CancelWrite(0)
		return err
	}
	if _, err := stream.Write(data); err != nil {
		stream.CancelWrite(0)
		return err
	}
	return stream.Close()
}

func (t *QUICTransport) connTo(to string) (*quic.Conn, error) {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()
	if t.conns == nil {
		return nil, fmt.Errorf("transport not started")
	}
	if conn, ok := t.conns[to]; ok {
		return conn, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, to, ClientTLS(), nil)
	if err != nil {
		return nil, err
	}
	t.conns[to] = conn
	return conn, nil
}

func (t *QUICTransport) dropConn(to string, conn *quic.Conn) {
	t.connMutex.Lock()
	if t.conns != nil && t.conns[to] == conn {
		delete(t.conns, to)
	}
	t.connMutex.Unlock()
	_ = conn.CloseWithError(0, "stale")
}

func (t *QUICTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept(t.ctx)
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.serveConn(conn)
	}
}

func (t *QUICTransport) serveConn(conn *quic.Conn) {
	defer t.wg.Done()
	for {
		stream, err := conn.AcceptStream(t.ctx)
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.serveStream(stream)
	}
}

func (t *QUICTransport) serveStream(stream *quic.Stream) {
	defer t.wg.Done()
	defer stream.CancelRead(0)

	for {
		var prefix [4]byte
		if _, err := io.ReadFull(stream, prefix[:]); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(prefix[:])
		if size > maxFrameBytes {
			return
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(stream, data); err != nil {
			return
		}

		var env Envelope
		if err := t.codec().Unmarshal(data, &env); err != nil {
			continue
		}
		if handler := t.handler; handler != nil {
			_ = handler(env)
		}
	}
}

// SelfSignedTLS builds a throwaway server certificate for nodes without
// provisioned credentials. Peers dialing with ClientTLS skip verification,
// so this configuration only suits trusted networks and tests.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "substrate-node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
		NextProtos: []string{alpnProtocol},
	}, nil
}

// ClientTLS is the dialing counterpart of SelfSignedTLS.
func ClientTLS() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
	}
}
