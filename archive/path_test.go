package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "simple", in: "a/b", want: "a/b"},
		{name: "leading dot slash", in: "./a/b", want: "a/b"},
		{name: "absolute path rejected", in: "/etc/passwd", wantErr: true},
		{name: "parent escape rejected", in: "../../etc/passwd", wantErr: true},
		{name: "embedded parent normalizes safely", in: "a/../b", want: "b"},
		{name: "root itself rejected", in: ".", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsafe path")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateLinkTarget(t *testing.T) {
	got, err := ValidateLinkTarget("")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = ValidateLinkTarget("../escape")
	require.Error(t, err)
}
