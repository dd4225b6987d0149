package gaskit

import (
	"testing"
)

func TestKafkaSinkSetup(t *testing.T) {
	ks := &KafkaSink{}
	if err := ks.Setup(); err == nil {
		t.Error("expected error without brokers")
	}
	if ks.IsReady() {
		t.Error("sink must not be ready after failed setup")
	}

	ks = &KafkaSink{Brokers: []string{"kafka.local:9092"}}
	if err := ks.Setup(); err != nil {
		t.Fatal(err)
	}
	if !ks.IsReady() {
		t.Error("expected sink ready")
	}
	if ks.Topic != defaultKafkaTopic {
		t.Errorf("got topic %s, want default %s", ks.Topic, defaultKafkaTopic)
	}

	if err := ks.Close(); err != nil {
		t.Fatal(err)
	}
	if ks.IsReady() {
		t.Error("sink must not be ready after close")
	}
}
