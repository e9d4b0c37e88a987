package hpx

import (
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestHostOption(t *testing.T) {
	opts := defaultOptions()
	HostOption("example.com")(&opts)

	if opts.host != "example.com" {
		t.Errorf("host = %s, want example.com", opts.host)
	}
}

func TestPortOption(t *testing.T) {
	opts := defaultOptions()
	PortOption(1234)(&opts)

	if opts.port != 1234 {
		t.Errorf("port = %d, want 1234", opts.port)
	}
}

func TestSessionOption(t *testing.T) {
	var opts options
	SessionOption("abc")(&opts)

	if opts.session != "abc" {
		t.Errorf("session = %s, want abc", opts.session)
	}
}

func TestTimeoutOption(t *testing.T) {
	var opts options
	TimeoutOption(time.Minute)(&opts)

	if opts.timeout != time.Minute {
		t.Errorf("timeout = %v, want %v", opts.timeout, time.Minute)
	}
}

func TestTimeoutOption_Zero(t *testing.T) {
	opts := defaultOptions()
	TimeoutOption(0)(&opts)

	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}
	if opts.timeout != 0 {
		t.Errorf("timeout = %v, want 0 (disabled)", opts.timeout)
	}
}

func TestReadBufferSizeOption(t *testing.T) {
	var opts options
	ReadBufferSizeOption(100)(&opts)

	if opts.readBufferSize != 100 {
		t.Errorf("readBufferSize = %d, want 100", opts.readBufferSize)
	}
}

func TestMessageMaxSize(t *testing.T) {
	var opts options
	MessageMaxSize(4096)(&opts)

	if opts.maxReadLength != 4096 {
		t.Errorf("maxReadLength = %d, want 4096", opts.maxReadLength)
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	var opts options
	LoggerOption(logger)(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestMetricsOption(t *testing.T) {
	reg := prometheus.NewRegistry()
	var opts options
	MetricsOption(reg)(&opts)

	if opts.registerer != reg {
		t.Error("registerer not set correctly")
	}
}

func TestTracerProviderOption(t *testing.T) {
	tp := noop.NewTracerProvider()
	var opts options
	TracerProviderOption(tp)(&opts)

	if opts.tracerProvider != tp {
		t.Error("tracer provider not set correctly")
	}
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts := defaultOptions()
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.host != defaultHost {
		t.Errorf("host = %s, want %s", opts.host, defaultHost)
	}
	if opts.port != defaultPort {
		t.Errorf("port = %d, want %d", opts.port, defaultPort)
	}
	if opts.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", opts.timeout, defaultTimeout)
	}
	if opts.readBufferSize != defaultReadBufferSize {
		t.Errorf("readBufferSize = %d, want %d", opts.readBufferSize, defaultReadBufferSize)
	}
	if opts.maxReadLength != defaultMaxMessageLength {
		t.Errorf("maxReadLength = %d, want %d", opts.maxReadLength, defaultMaxMessageLength)
	}
	if opts.logger == nil {
		t.Error("logger is nil")
	}

	d, ok := opts.dialer.(*net.Dialer)
	if !ok {
		t.Fatalf("dialer = %T, want *net.Dialer", opts.dialer)
	}
	if d.Timeout != defaultTimeout {
		t.Errorf("dial timeout = %v, want %v", d.Timeout, defaultTimeout)
	}
}

func TestCheckOptions_TLS(t *testing.T) {
	opts := defaultOptions()
	TLSOption(&tls.Config{ServerName: "hpx.local"})(&opts)

	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	d, ok := opts.dialer.(*tls.Dialer)
	if !ok {
		t.Fatalf("dialer = %T, want *tls.Dialer", opts.dialer)
	}
	if d.Config.ServerName != "hpx.local" {
		t.Errorf("ServerName = %s, want hpx.local", d.Config.ServerName)
	}
}

func TestCheckOptions_InvalidPort(t *testing.T) {
	opts := defaultOptions()
	PortOption(-1)(&opts)

	if err := checkOptions(&opts); err == nil {
		t.Error("expected error for negative port")
	}
}

func TestCheckOptions_NegativeTimeout(t *testing.T) {
	opts := defaultOptions()
	TimeoutOption(-time.Second)(&opts)

	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}
	if opts.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", opts.timeout, defaultTimeout)
	}
}

func TestSendOptions(t *testing.T) {
	if applySendOptions(nil).skipAuthCheck {
		t.Error("auth check skipped by default")
	}
	if !applySendOptions([]SendOption{NoAuthCheckOption()}).skipAuthCheck {
		t.Error("NoAuthCheckOption not applied")
	}
}

func TestHandshakeOptions(t *testing.T) {
	ho := applyHandshakeOptions([]HandshakeOption{CredentialsOption("u", "p"), IgnoreAuthErrorsOption()})

	if !ho.hasCredentials || ho.user != "u" || ho.password != "p" {
		t.Errorf("credentials = %+v", ho)
	}
	if !ho.ignoreErrors {
		t.Error("ignoreErrors not set")
	}

	if ho := applyHandshakeOptions(nil); ho.hasCredentials || ho.ignoreErrors {
		t.Errorf("defaults = %+v", ho)
	}
}
