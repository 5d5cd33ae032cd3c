package reporting

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) Config {
	dir := t.TempDir()
	return Config{
		Out:      &bytes.Buffer{},
		ErrOut:   &bytes.Buffer{},
		HTMLFile: filepath.Join(dir, "out.html"),
		JSONFile: filepath.Join(dir, "out.json"),
		Log:      log.New(),
	}
}

func sinkTypes(a *Aggregator) []string {
	var out []string
	for _, s := range a.Sinks() {
		switch s.(type) {
		case *StdTerm:
			out = append(out, NameStdTerm)
		case *HTMLSink:
			out = append(out, NameHTML)
		case *JSONSink:
			out = append(out, NameJSON)
		default:
			out = append(out, "extra")
		}
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		list string
		want []string
	}{
		{name: "invalid falls back to stdterm", list: "sup", want: []string{NameStdTerm}},
		{name: "empty falls back to stdterm", list: "", want: []string{NameStdTerm}},
		{name: "default is stdterm", list: "default", want: []string{NameStdTerm}},
		{name: "stdterm", list: "stdterm", want: []string{NameStdTerm}},
		{name: "html", list: "html", want: []string{NameHTML}},
		{name: "json", list: "json", want: []string{NameJSON}},
		{name: "multiple reporters", list: "stdterm,html", want: []string{NameStdTerm, NameHTML}},
		{name: "no duplicates", list: "html,html", want: []string{NameHTML}},
		{name: "default and stdterm collapse", list: "stdterm,default", want: []string{NameStdTerm}},
		{name: "strips invalid reporters", list: "html,sup", want: []string{NameHTML}},
		{name: "trims and lowercases", list: " HTML , Json ", want: []string{NameHTML, NameJSON}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := New(tt.list, newTestConfig(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sinkTypes(agg))
		})
	}
}

func TestNewWithExtraSinks(t *testing.T) {
	cfg := newTestConfig(t)
	extra := &mockReporter{}
	cfg.Extra = map[string]Reporter{"postgres": extra}

	agg, err := New("stdterm,postgres", cfg)
	require.NoError(t, err)
	require.Len(t, agg.Sinks(), 2)
	assert.Same(t, extra, agg.Sinks()[1])

	agg, err = New("postgres", newTestConfig(t))
	require.NoError(t, err)
	assert.Equal(t, []string{NameStdTerm}, sinkTypes(agg), "unconfigured extra sinks are unknown")
}

func TestParseNames(t *testing.T) {
	valid := func(name string) bool { return name == "a" || name == "stdterm" }
	names, unknown := ParseNames("a,b,,a,default,c", valid)
	assert.Equal(t, []string{"a", "stdterm"}, names)
	assert.Equal(t, []string{"b", "c"}, unknown)
}
