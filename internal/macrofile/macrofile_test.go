package macrofile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linuxmacro/internal/macro"
)

var sample = []macro.Event{
	{Triple: macro.Triple{Kind: 1, Code: 30, Value: 1}},
	{Triple: macro.Triple{Kind: 0, Code: 0, Value: 0}, Delay: macro.DelayOf(3 * time.Millisecond)},
	{Triple: macro.Triple{Kind: 1, Code: 30, Value: 0}, Delay: macro.Delay{Sec: 2, Nsec: 5}},
}

func TestSaveLoad(t *testing.T) {
	f := New("AT Translated Set 2 keyboard", sample)
	assert.NotEqual(t, uuid.Nil, f.ID)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, f))
	assert.Contains(t, buf.String(), `"delay_ns": 2000000005`)

	got, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.True(t, f.Created.Equal(got.Created))
	assert.Equal(t, f.Device, got.Device)

	events, err := got.Sequence()
	require.NoError(t, err)
	assert.Equal(t, sample, events)
}

func TestLoadEmptySequence(t *testing.T) {
	f, err := Load(strings.NewReader(`{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","events":[]}`))
	require.NoError(t, err)
	events, err := f.Sequence()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"events":`,
		"missing events": `{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`,
		"negative delay": `{"events":[{"type":1,"code":2,"value":1,"delay_ns":-4}]}`,
		"bad id":         `{"id":"nope","events":[]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.True(t, errors.Is(err, ErrInvalidFile))
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.json")
	f := New("", sample)
	require.NoError(t, WriteFile(path, f))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Len(t, got.Events, len(sample))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
