package build

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.observeCompile(nil, 2*time.Millisecond)
	m.observeCompile(errors.New("boom"), time.Millisecond)
	m.observeBuild(nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`pugjinja_compiles_total{result="ok"} 1`,
		`pugjinja_compiles_total{result="error"} 1`,
		`pugjinja_builds_total{result="ok"} 1`,
		`pugjinja_compile_duration_seconds_count 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestNilMetricsAreIgnored(t *testing.T) {
	var m *Metrics
	m.observeCompile(nil, time.Millisecond)
	m.observeBuild(errors.New("x"))
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(nil)
	m.observeBuild(errors.New("failed"))
	want := `
# HELP pugjinja_builds_total Total number of directory builds
# TYPE pugjinja_builds_total counter
pugjinja_builds_total{result="error"} 1
`
	if err := testutil.CollectAndCompare(m.builds, strings.NewReader(want)); err != nil {
		t.Fatal(err)
	}
}
