package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyFile, []byte("  from-file\n"), 0o600))
	emptyFile := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(emptyFile, []byte("\n"), 0o600))

	t.Setenv("ATS_SCREENER_TEST_SECRET", " from-env ")

	cases := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{Name: "key", Value: "inline", File: keyFile}, want: "from-file"},
		{name: "inline", src: Source{Value: " inline "}, want: "inline"},
		{name: "inline wins over env", src: Source{Value: "inline", Env: "ATS_SCREENER_TEST_SECRET"}, want: "inline"},
		{name: "env", src: Source{Env: "ATS_SCREENER_TEST_SECRET"}, want: "from-env"},
		{name: "empty file", src: Source{Name: "key", File: emptyFile}, wantErr: "is empty"},
		{name: "missing file", src: Source{Name: "key", File: filepath.Join(dir, "nope")}, wantErr: "reading key"},
		{name: "unset env", src: Source{Name: "token", Env: "ATS_SCREENER_TEST_UNSET"}, wantErr: "$ATS_SCREENER_TEST_UNSET"},
		{name: "nothing", src: Source{}, wantErr: "secret is not configured"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Load(tc.src)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
