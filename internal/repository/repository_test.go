package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validInstall(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "cassandra"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "conf", "cassandra.yaml"), []byte("cluster_name: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestValidate_OK(t *testing.T) {
	dir := validInstall(t)
	if err := Validate(dir); err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	// segunda pasada servida por el cache
	if err := Validate(dir); err != nil {
		t.Fatalf("cached Validate err: %v", err)
	}
}

func TestValidate_Empty(t *testing.T) {
	var ve *ValidationError
	if err := Validate(""); !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestValidate_NotADirectory(t *testing.T) {
	if err := Validate(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error on missing directory")
	}
}

func TestValidate_MissingLauncher(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	var ve *ValidationError
	if err := Validate(dir); !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Reason != "missing bin/cassandra" {
		t.Fatalf("unexpected reason: %q", ve.Reason)
	}
}

func TestValidate_MissingTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "cassandra"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	var ve *ValidationError
	if err := Validate(dir); !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Reason != "missing conf/cassandra.yaml" {
		t.Fatalf("unexpected reason: %q", ve.Reason)
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	override := validInstall(t)
	clusterDir := validInstall(t)

	got, err := Resolve(override, clusterDir)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if got != override {
		t.Fatalf("expected override %s, got %s", override, got)
	}

	got, err = Resolve("", clusterDir)
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if got != clusterDir {
		t.Fatalf("expected cluster dir %s, got %s", clusterDir, got)
	}
}

func TestResolve_InvalidChoice(t *testing.T) {
	if _, err := Resolve(t.TempDir(), validInstall(t)); err == nil {
		t.Fatal("an invalid override must fail even with a valid fallback")
	}
}
