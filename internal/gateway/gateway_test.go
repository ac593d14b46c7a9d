package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/univoice/core/internal/config"
	"github.com/univoice/core/internal/pipeline"
	asrmock "github.com/univoice/core/pkg/provider/asr/mock"
	translatemock "github.com/univoice/core/pkg/provider/translate/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ASR.Language = "en"
	cfg.ASR.TargetLanguage = "ja"
	cfg.Summary.WordThreshold = 1_000_000
	return cfg
}

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Pipeline) {
	t.Helper()
	translateProvider := &translatemock.Provider{}
	p := pipeline.New(pipeline.Deps{
		Config:             testConfig(),
		ASRProvider:        &asrmock.Provider{},
		RealtimeProvider:   translateProvider,
		QualityProvider:    translateProvider,
		VocabularyProvider: translateProvider,
		ReportProvider:     translateProvider,
	})

	gw := New(p)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv, p
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestGateway_StartListeningCommandReturnsOK(t *testing.T) {
	srv, p := newTestServer(t)
	defer func() {
		_ = p.StopListening(context.Background())
	}()
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	body, _ := json.Marshal(command{Command: "startListening"})
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		t.Fatalf("write() error = %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if !r.OK {
		t.Fatalf("reply = %+v, want ok", r)
	}
}

func TestGateway_UnknownCommandReturnsError(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	body, _ := json.Marshal(command{Command: "doTheThing"})
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		t.Fatalf("write() error = %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if !r.Error || r.Kind != "StateError" {
		t.Fatalf("reply = %+v, want a StateError", r)
	}
}
