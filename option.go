package hpx

import (
	"crypto/tls"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	defaultHost = "localhost"
	defaultPort = 7007
	// defaultTimeout bounds every socket operation.
	defaultTimeout = 10 * time.Second
	// defaultReadBufferSize is the size of a single socket read.
	defaultReadBufferSize = 4096
	// defaultMaxMessageLength is the largest frame accepted (64MB).
	defaultMaxMessageLength = 64 * 1024 * 1024
)

// options holds the configuration for a client.
type options struct {
	host      string
	port      int
	session   string
	tlsConfig *tls.Config
	timeout   time.Duration
	dialer    Dialer
	logger    Logger

	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider

	readBufferSize int // bytes requested per socket read
	maxReadLength  int // maximum size of a buffered, undelimited message
}

// Option is a function that configures client options.
type Option func(*options)

func defaultOptions() options {
	return options{
		host:    defaultHost,
		port:    defaultPort,
		timeout: defaultTimeout,
	}
}

// checkOptions validates and fills in default values.
func checkOptions(opts *options) error {
	if opts.host == "" {
		opts.host = defaultHost
	}
	if err := checkPort(opts.port); err != nil {
		return err
	}
	if opts.timeout < 0 {
		opts.timeout = defaultTimeout
	}
	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}
	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxMessageLength
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	if opts.dialer == nil {
		opts.dialer = newDialer(opts.tlsConfig, opts.timeout)
	}
	return nil
}

// HostOption sets the server host. Default is localhost.
func HostOption(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// PortOption sets the server port. Default is 7007.
func PortOption(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

// SessionOption seeds the session token so that a connect resumes an
// existing server-side session instead of authenticating again.
func SessionOption(session string) Option {
	return func(o *options) {
		o.session = session
	}
}

// TLSOption enables TLS with the given configuration.
func TLSOption(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// TimeoutOption sets the timeout applied to dialing and to every socket
// read and write. Zero disables the timeout.
func TimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// DialerOption replaces the dialer used by Connect. TLSOption and the
// dial part of TimeoutOption are ignored when a dialer is supplied.
//
// A client with a session reuses a socket the dialer returns together
// with an error wrapping syscall.EISCONN. net.Dialer and tls.Dialer
// never return a conn alongside an error, so that reuse is only
// reachable through a custom Dialer.
func DialerOption(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// ReadBufferSizeOption sets how many bytes are requested per socket read.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MessageMaxSize sets the largest frame, not counting the delimiter, the
// client will accept. A peer that sends more is disconnected.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// LoggerOption sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption registers the client's Prometheus collectors with reg.
// Metrics are disabled when not set.
func MetricsOption(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// TracerProviderOption sets the OpenTelemetry tracer provider.
// If not set, the global provider is used.
func TracerProviderOption(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// sendOptions holds per-call settings for the send operations.
type sendOptions struct {
	skipAuthCheck bool
}

// SendOption configures a single Send, SendRaw or SendBytes call.
type SendOption func(*sendOptions)

// NoAuthCheckOption lets a send proceed while the client is connected but
// not yet authenticated. The handshake itself relies on it.
func NoAuthCheckOption() SendOption {
	return func(o *sendOptions) {
		o.skipAuthCheck = true
	}
}

func applySendOptions(opts []SendOption) sendOptions {
	var so sendOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}

// handshakeOptions holds per-call settings for the handshake.
type handshakeOptions struct {
	user, password string
	hasCredentials bool
	ignoreErrors   bool
}

// HandshakeOption configures Handshake and RequestHandshake.
type HandshakeOption func(*handshakeOptions)

// CredentialsOption supplies the user and password to authenticate with.
// Credentials with a non-empty user are cached on the client and reused
// by a later RequestHandshake that supplies none.
func CredentialsOption(user, password string) HandshakeOption {
	return func(o *handshakeOptions) {
		o.user = user
		o.password = password
		o.hasCredentials = true
	}
}

// IgnoreAuthErrorsOption makes the handshake report failure instead of
// returning the server's auth error.
func IgnoreAuthErrorsOption() HandshakeOption {
	return func(o *handshakeOptions) {
		o.ignoreErrors = true
	}
}

func applyHandshakeOptions(opts []HandshakeOption) handshakeOptions {
	var ho handshakeOptions
	for _, o := range opts {
		o(&ho)
	}
	return ho
}
