package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFromDir_ResolvesNestedKeys(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "ru.yaml", "start:\n  welcome: \"Привет, номер %d\"\n")
	writeCatalog(t, dir, "en.yaml", "start:\n  welcome: \"Hello, number %d\"\n")

	m, err := LoadFromDir(dir, "ru")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ru", "en"}, m.Languages())

	ru := m.Translator("ru")
	require.Equal(t, "Привет, номер %d", ru.T("start.welcome"))
	require.Equal(t, "Привет, номер 7", ru.Tf("start.welcome", 7))

	en := m.Translator("en")
	require.Equal(t, "Hello, number 7", en.Tf("start.welcome", 7))
}

func TestTranslator_FallsBackToDefaultLanguage(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "ru.yaml", "phone:\n  saved: \"Сохранено\"\n")
	writeCatalog(t, dir, "en.yaml", "start:\n  welcome: \"Hello\"\n")

	m, err := LoadFromDir(dir, "ru")
	require.NoError(t, err)

	// en catalog has no phone.saved, so the ru default is served.
	en := m.Translator("en")
	require.Equal(t, "Сохранено", en.T("phone.saved"))

	// unknown language falls back to the default translator entirely.
	de := m.Translator("de")
	require.Equal(t, "ru", de.Lang())
}

func TestTranslator_MissingKeyReturnsKey(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "ru.yaml", "a:\n  b: \"c\"\n")

	m, err := LoadFromDir(dir, "ru")
	require.NoError(t, err)

	require.Equal(t, "missing.key", m.Translator("ru").T("missing.key"))
}

func TestLoadFromDir_MissingDefaultLanguage(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "en.yaml", "a: \"b\"\n")

	_, err := LoadFromDir(dir, "ru")
	require.Error(t, err)
}
