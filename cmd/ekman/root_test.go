package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/example/go-ekman/internal/config"
	"github.com/example/go-ekman/internal/emotion"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"analyze", "labels", "bench", "model", "serve", "health", "doctor"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"config", "otel", "log-level", "ort-lib", "paths-manifest-path"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected --%s persistent flag to be registered", name)
		}
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		setupLogger(level)
	}
}

func TestSetupLogger_InvalidLevelFallsBackToInfo(_ *testing.T) {
	// Should not panic on invalid level.
	setupLogger("not-a-level")
}

func TestRequireConfig_FailsWhenNotInitialized(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.Config{}

	_, err := requireConfig()
	if err == nil {
		t.Fatal("expected error when config is not loaded")
	}
}

func TestRequireConfig_SucceedsWhenLoaded(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.DefaultConfig()
	activeCfg.Paths.ModelPath = "/some/model/path"

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig returned unexpected error: %v", err)
	}

	if got.Paths.ModelPath != "/some/model/path" {
		t.Errorf("unexpected ModelPath: %q", got.Paths.ModelPath)
	}
}

func TestRootCmd_LabelsLoadsConfig(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	root := NewRootCmd()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{
		"labels",
		"--format", "json",
		"--paths-manifest-path", t.TempDir() + "/absent.json",
		"--log-level", "error",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("labels failed: %v", err)
	}

	var classes []emotion.Class
	if err := json.Unmarshal(out.Bytes(), &classes); err != nil {
		t.Fatalf("decode labels: %v\n%s", err, out.String())
	}

	if len(classes) != 7 || classes[0].Label != "Anger" || classes[0].Index != 2 {
		t.Errorf("unexpected classes: %+v", classes)
	}
}

func TestRootCmd_TracingFlagInstallsAndShutsDown(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() {
		activeCfg = orig
		otelOut = false
	})

	root := NewRootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{
		"labels",
		"--otel",
		"--paths-manifest-path", t.TempDir() + "/absent.json",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("labels --otel failed: %v", err)
	}

	if shutdownTracing != nil {
		t.Error("tracer should be shut down after the command")
	}
}
