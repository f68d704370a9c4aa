package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/warpdl/rtfetch/pkg/logger"
)

func TestSession_ResolvePaths(t *testing.T) {
	port := startSeedbox(t, map[string][]byte{
		"/done/Show/S01/Ep1.mkv": payload(4096, 5),
	})
	s, err := openSession(testConfig(t, port, t.TempDir()), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()

	var out strings.Builder
	n := s.resolvePaths(context.Background(), &out, []string{
		"/done/show/s01/ep1.mkv",
		"/done/Show/S01/missing.mkv",
	})
	if n != 1 {
		t.Errorf("failures = %d, want 1", n)
	}
	got := out.String()
	assertContains(t, got, "-> /done/Show/S01/Ep1.mkv (4.0 KiB)")
	assertContains(t, got, "/done/Show/S01/missing.mkv\n    !! ")
}

func TestExecute_Resolve(t *testing.T) {
	out, _ := resetGlobals(t)
	port := startSeedbox(t, map[string][]byte{
		"/done/Movie (2020)/movie.mkv": payload(1024, 6),
	})
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.jsonc", configDoc(port, dir, dir))

	err := Execute([]string{"rtfetch", "--config", cfgPath, "resolve", "/done/movie (2020)/Movie.mkv"}, BuildArgs{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertContains(t, out.String(), "-> /done/Movie (2020)/movie.mkv (1.0 KiB)")

	err = Execute([]string{"rtfetch", "--config", cfgPath, "resolve", "/done/nothing.mkv"}, BuildArgs{})
	if err == nil || err.Error() != "1 path(s) not found" {
		t.Errorf("Execute = %v, want 1 path not found", err)
	}
}
