package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRawRecord(t *testing.T) {
	t.Run("keeps integers exact", func(t *testing.T) {
		rec, err := DecodeRawRecord([]byte(`{"id":"https://openalex.org/W1","cited_by_count":9007199254740993}`))
		require.NoError(t, err)

		n, ok, err := rec.Get("cited_by_count").Int()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(9007199254740993), n)
	})

	t.Run("rejects non-object input", func(t *testing.T) {
		_, err := DecodeRawRecord([]byte(`[1,2,3]`))
		assert.Error(t, err)
	})

	t.Run("rejects null", func(t *testing.T) {
		_, err := DecodeRawRecord([]byte(`null`))
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})
}

func TestValue_NestedLookup(t *testing.T) {
	rec, err := DecodeRawRecord([]byte(`{
		"primary_topic": {
			"display_name": "Machine Learning",
			"score": 0.98,
			"field": {"display_name": "Computer Science"},
			"domain": null
		},
		"open_access": "yes"
	}`))
	require.NoError(t, err)

	t.Run("present path", func(t *testing.T) {
		name, ok, err := rec.Get("primary_topic").Get("field").Get("display_name").String()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Computer Science", name)
	})

	t.Run("missing sibling does not affect others", func(t *testing.T) {
		v := rec.Get("primary_topic").Get("subfield").Get("display_name")
		assert.False(t, v.Present())
		assert.Equal(t, "primary_topic.subfield.display_name", v.Path())
	})

	t.Run("explicit null is absent", func(t *testing.T) {
		_, ok, err := rec.Get("primary_topic").Get("domain").Object()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lookup through a scalar is absent", func(t *testing.T) {
		v := rec.Get("open_access").Get("is_oa")
		assert.False(t, v.Present())
	})

	t.Run("missing top level key", func(t *testing.T) {
		v := rec.Get("nope").Get("deeper").Get("deepest")
		_, ok, err := v.Float()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("nil record", func(t *testing.T) {
		var nilRec RawRecord
		assert.False(t, nilRec.Get("id").Present())
		assert.Equal(t, "", nilRec.ID())
	})
}

func TestValue_TypeErrors(t *testing.T) {
	rec := RawRecord{
		"title":          42,
		"cited_by_count": "many",
		"is_oa":          "true",
		"primary_topic":  []any{"x"},
		"score":          "0.5",
		"ratio":          1.5,
	}

	tests := []struct {
		name     string
		call     func() error
		expected string
	}{
		{"string", func() error { _, _, err := rec.Get("title").String(); return err }, "string"},
		{"integer", func() error { _, _, err := rec.Get("cited_by_count").Int(); return err }, "integer"},
		{"fractional integer", func() error { _, _, err := rec.Get("ratio").Int(); return err }, "integer"},
		{"boolean", func() error { _, _, err := rec.Get("is_oa").Bool(); return err }, "boolean"},
		{"object", func() error { _, _, err := rec.Get("primary_topic").Object(); return err }, "object"},
		{"number", func() error { _, _, err := rec.Get("score").Float(); return err }, "number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))

			var typeErr *FieldTypeError
			require.True(t, errors.As(err, &typeErr))
			assert.Equal(t, tt.expected, typeErr.Expected)
		})
	}
}

func TestValue_IntAcceptsIntegralFloats(t *testing.T) {
	rec, err := DecodeRawRecord([]byte(`{"a": 12.0, "b": 7}`))
	require.NoError(t, err)

	a, ok, err := rec.Get("a").Int()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), a)

	rec2 := RawRecord{"b": float64(3)}
	b, ok, err := rec2.Get("b").Int()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), b)
}

func TestStripPrefixes(t *testing.T) {
	assert.Equal(t, "W2741809807", StripOpenAlexIDPrefix("https://openalex.org/W2741809807"))
	assert.Equal(t, "W2741809807", StripOpenAlexIDPrefix("W2741809807"))
	assert.Equal(t, "", StripOpenAlexIDPrefix("https://openalex.org/"))
	assert.Equal(t, "10.1038/nature12373", StripDOIPrefix("https://doi.org/10.1038/nature12373"))
	assert.Equal(t, "10.1038/nature12373", StripDOIPrefix(" 10.1038/nature12373 "))
}

func TestNewRunEvent(t *testing.T) {
	done, err := NewRunEvent(RunSummary{RunID: "r1", State: "DONE"})
	require.NoError(t, err)
	assert.Equal(t, EventTypeRunCompleted, done.EventType)
	assert.Contains(t, string(done.Payload), `"run_id":"r1"`)

	aborted, err := NewRunEvent(RunSummary{RunID: "r2", State: "ABORTED"})
	require.NoError(t, err)
	assert.Equal(t, EventTypeRunAborted, aborted.EventType)
}

func TestRawRecord_IsObject(t *testing.T) {
	rec, err := DecodeRawRecord([]byte(`"garbage"`))
	require.Error(t, err)
	assert.False(t, rec.IsObject())
	assert.Empty(t, rec.ID())

	assert.True(t, RawRecord{}.IsObject())
}
