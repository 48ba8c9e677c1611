package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberquest/core"
)

func TestDefaultIsValid(t *testing.T) {
	levels, err := Validate(Default())
	require.NoError(t, err)
	require.Len(t, levels, 4)
	assert.Equal(t, "Level1Scene", levels[0].Key)
	assert.Equal(t, core.LevelID(4), levels[3].ID)
}

func TestLoadSortsByID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.yaml")
	content := `levels:
  - id: 2
    key: passwords
    title: Password Fortress
  - id: 1
    key: hoax
    title: Hoax Detective
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	levels, err := Load(path)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "hoax", levels[0].Key)
	assert.Equal(t, "passwords", levels[1].Key)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		levels []core.LevelSpec
		errMsg string
	}{
		{name: "empty", levels: nil, errMsg: "no levels"},
		{name: "gap", levels: []core.LevelSpec{{ID: 1, Key: "a"}, {ID: 3, Key: "c"}}, errMsg: "without gaps"},
		{name: "starts at zero", levels: []core.LevelSpec{{ID: 0, Key: "a"}}, errMsg: "without gaps"},
		{name: "duplicate key", levels: []core.LevelSpec{{ID: 1, Key: "a"}, {ID: 2, Key: "a"}}, errMsg: "duplicate level key"},
		{name: "empty key", levels: []core.LevelSpec{{ID: 1, Key: " "}}, errMsg: "empty key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.levels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("levels: [this is: not valid"))
	assert.Error(t, err)
}
