package knowledge

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
university:
  name: Херсонський державний університет
  short_name: ХДУ
contacts:
  address: м. Херсон, вул. Університетська, 27
  admissions:
    phones:
      - "+380 552 494375"
      - "+38 095 59 29 149"
  email: admission@ksu.ks.ua
tuition:
  "121":
    name: Інженерія програмного забезпечення
    per_year: 32000
faculties:
  - name: Факультет комп'ютерних наук
    open: true
summary: Університет проводить вступну кампанію через KSU24.
`

func TestParsePreservesSectionOrder(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"university", "contacts", "tuition", "faculties", "summary"}, doc.Names())
	assert.True(t, doc.Has(SectionTuition))
	assert.False(t, doc.Has(SectionDocuments))

	tuition, ok := doc.Section(SectionTuition)
	require.True(t, ok)
	program, ok := tuition.Get("121")
	require.True(t, ok)
	price, ok := program.Get("per_year")
	require.True(t, ok)
	assert.Equal(t, KindNumber, price.Kind)
	assert.Equal(t, 32000.0, price.Num)

	faculties, _ := doc.Section(SectionFaculties)
	assert.Equal(t, KindList, faculties.Kind)
	assert.Equal(t, "Університет проводить вступну кампанію через KSU24.", doc.Summary())
}

func TestParseRejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())
}

func TestCanonicalJSON(t *testing.T) {
	v := Map(map[string]Value{
		"b": String("<Б>"),
		"a": List(Number(1), Bool(true), Value{}),
	})
	assert.Equal(t, `{"a":[1,true,null],"b":"<Б>"}`, v.Text())
}

func TestNonSerializableValuesDegradeToText(t *testing.T) {
	v := Map(map[string]Value{
		"nan":  Number(math.NaN()),
		"chan": Opaque(make(chan int)),
	})

	text := v.Text()
	assert.Contains(t, text, `"nan":"NaN"`)
	assert.Contains(t, text, `"chan":"0x`)
}

func TestContactPhones(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"+380 552 494375", "+38 095 59 29 149"}, doc.ContactPhones())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)

	pc, err := NewStaticProvider(doc).ContextForPrompt(context.Background(), "вартість")
	require.NoError(t, err)
	assert.Same(t, doc, pc.Document)
	assert.NotEmpty(t, pc.Text)

	_, err = NewStaticProvider(nil).ContextForPrompt(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewDocumentOrder(t *testing.T) {
	doc := NewDocument(map[string]interface{}{
		"tuition":    map[string]interface{}{"a": 1},
		"university": "ХДУ",
		"extra":      []interface{}{"x"},
	}, "university", "tuition")

	assert.Equal(t, []string{"university", "tuition", "extra"}, doc.Names())
}
