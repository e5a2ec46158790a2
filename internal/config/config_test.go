package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const kafkaRuntime = `
name: orders-fn
logLevel: debug
codec:
  format: msgpack
  keys: raw
  batch: true
trigger:
  kind: kafka
  explicitAck: true
  kafka:
    cluster:
      brokers:
        - ${FNSDK_TEST_BROKER}
    topic: orders
    consumerGroup: orders-fn
deadLetter:
  topic: orders-dlq
`

func TestLoad_KafkaRuntime(t *testing.T) {
	t.Setenv("FNSDK_TEST_BROKER", "localhost:9092")
	path := writeFile(t, t.TempDir(), "runtime.yaml", kafkaRuntime)

	cfg, err := NewLoader(path, nil).Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := cfg.Trigger.Kafka.Cluster.Brokers; len(got) != 1 || got[0] != "localhost:9092" {
		t.Errorf("expected expanded broker, got %v", got)
	}
	if cfg.Codec.Keys != "raw" || !cfg.Codec.Batch {
		t.Errorf("unexpected codec %+v", cfg.Codec)
	}
	if cfg.Codec.BodyEncoding != "raw" {
		t.Errorf("expected default body encoding raw, got %q", cfg.Codec.BodyEncoding)
	}
	if cfg.Control.Type != ControlLocal {
		t.Errorf("explicit-ack kafka trigger should default to local control, got %q", cfg.Control.Type)
	}
	if cfg.Trigger.Name != "orders-fn" {
		t.Errorf("trigger name should default to runtime name, got %q", cfg.Trigger.Name)
	}
	if cfg.Trigger.Kafka.StartOffset != "latest" {
		t.Errorf("expected start offset latest, got %q", cfg.Trigger.Kafka.StartOffset)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr, got %q", cfg.MetricsAddr)
	}
}

func TestLoad_HTTPRuntime(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runtime.yaml", `
name: web-fn
codec:
  format: json
trigger:
  kind: http
  http:
    listenAddr: ":8080"
control:
  type: http
  url: http://controller/acks
`)
	cfg, err := NewLoader(path, nil).Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Trigger.HTTP.Path != "/" {
		t.Errorf("expected default path /, got %q", cfg.Trigger.HTTP.Path)
	}
	if cfg.Control.URL != "http://controller/acks" {
		t.Errorf("unexpected control %+v", cfg.Control)
	}
	if cfg.Platform.Kind != "local" {
		t.Errorf("expected default platform kind local, got %q", cfg.Platform.Kind)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Runtime{
		Trigger: TriggerConfig{Kind: TriggerKafka, Kafka: &KafkaInput{StartOffset: "middle"}},
		Control: ControlConfig{Type: ControlKafka},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"name is required",
		"brokers are required",
		"trigger.kafka.topic is required",
		"trigger.kafka.consumerGroup is required",
		"startOffset",
		"control.topic is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_Cases(t *testing.T) {
	tests := []struct {
		name string
		cfg  Runtime
		want string
	}{
		{
			name: "unknown trigger",
			cfg:  Runtime{Name: "x", Trigger: TriggerConfig{Kind: "grpc"}, Control: ControlConfig{Type: ControlNoop}},
			want: "trigger.kind",
		},
		{
			name: "http without listen address",
			cfg:  Runtime{Name: "x", Trigger: TriggerConfig{Kind: TriggerHTTP}, Control: ControlConfig{Type: ControlNoop}},
			want: "listenAddr",
		},
		{
			name: "local control on http",
			cfg: Runtime{Name: "x", Trigger: TriggerConfig{Kind: TriggerHTTP, HTTP: &HTTPInput{ListenAddr: ":1"}},
				Control: ControlConfig{Type: ControlLocal}},
			want: "requires a kafka trigger",
		},
		{
			name: "http control without url",
			cfg: Runtime{Name: "x", Trigger: TriggerConfig{Kind: TriggerHTTP, HTTP: &HTTPInput{ListenAddr: ":1"}},
				Control: ControlConfig{Type: ControlHTTP}},
			want: "control.url",
		},
		{
			name: "unknown control",
			cfg: Runtime{Name: "x", Trigger: TriggerConfig{Kind: TriggerHTTP, HTTP: &HTTPInput{ListenAddr: ":1"}},
				Control: ControlConfig{Type: "carrier-pigeon"}},
			want: "not supported",
		},
		{
			name: "dead letter without cluster",
			cfg: Runtime{Name: "x", Trigger: TriggerConfig{Kind: TriggerHTTP, HTTP: &HTTPInput{ListenAddr: ":1"}},
				Control: ControlConfig{Type: ControlNoop}, DeadLetter: DeadLetter{Topic: "dlq"}},
			want: "deadLetter.topic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.yaml")},
		{"invalid yaml", writeFile(t, dir, "bad.yaml", "{{{{not yaml")},
		{"invalid config", writeFile(t, dir, "empty.yaml", "name: only-a-name\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(tt.path, nil).Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_FailureKeepsPrevious(t *testing.T) {
	t.Setenv("FNSDK_TEST_BROKER", "localhost:9092")
	path := writeFile(t, t.TempDir(), "runtime.yaml", kafkaRuntime)
	loader := NewLoader(path, nil)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("name: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected reload error")
	}
	if cur := loader.Current(); cur == nil || cur.Name != "orders-fn" {
		t.Errorf("expected previous config retained, got %+v", cur)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Setenv("FNSDK_TEST_BROKER", "localhost:9092")
	dir := t.TempDir()
	path := writeFile(t, dir, "runtime.yaml", kafkaRuntime)
	loader := NewLoader(path, nil)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	changed := make(chan *Runtime, 1)
	loader.OnChange(func(cfg *Runtime) {
		select {
		case changed <- cfg:
		default:
		}
	})

	done := make(chan struct{})
	defer close(done)
	go func() { _ = loader.Watch(done) }()
	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	writeFile(t, dir, "other.yaml", "name: other\n")
	writeFile(t, dir, "runtime.yaml", strings.Replace(kafkaRuntime, "logLevel: debug", "logLevel: warn", 1))

	select {
	case cfg := <-changed:
		if cfg.LogLevel != "warn" {
			t.Errorf("expected reloaded log level warn, got %q", cfg.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatch_StopCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	loader := NewLoader(path, nil)

	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- loader.Watch(done) }()

	time.Sleep(50 * time.Millisecond)
	close(done)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_InvalidDir(t *testing.T) {
	err := NewLoader("/nonexistent/watch/dir/runtime.yaml", nil).Watch(make(chan struct{}))
	if err == nil {
		t.Fatal("expected error for nonexistent directory")
	}
}

func TestValidate_JoinedErrorsUnwrap(t *testing.T) {
	err := (&Runtime{}).Validate()
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) < 2 {
		t.Errorf("expected joined errors, got %v", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
