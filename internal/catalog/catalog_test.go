package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  // Exported from the Lutron app, trimmed.
  "Areas": [
    {"href": "/area/2", "Name": "Kitchen"},
    {"href": "/area/3", "Name": "Living Room"},
  ],
  "Zones": [
    {"href": "/zone/30", "ID": 30, "Name": "Pendants", "Area": {"href": "/area/2"}},
    {"href": "/zone/27", "ID": 27, "Name": "Kitchen Cans", "Area": {"href": "/area/2"}},
    {"href": "/zone/5", "ID": "5", "Name": "Floor Lamp", "Area": {"href": "/area/3"}},
    {"href": "/zone/40", "ID": 40, "Name": "Porch", "Area": {"href": "/area/9"}},
    {"href": "/zone/41", "ID": 41, "Name": "Spare"},
    {"href": "/zone/0", "Name": "Broken"},
  ]
}`

func sample(t *testing.T) *Catalog {
	t.Helper()
	c, err := Parse([]byte(sampleReport))
	require.NoError(t, err)
	return c
}

func TestParse(t *testing.T) {
	c := sample(t)

	assert.Equal(t, 5, c.Len())
	z, ok := c.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, Zone{ID: 5, Name: "Floor Lamp", Area: "Living Room"}, z)

	z, _ = c.Lookup(40)
	assert.Equal(t, UnknownArea, z.Area)

	z, _ = c.Lookup(41)
	assert.Empty(t, z.Area)

	_, ok = c.Lookup(0)
	assert.False(t, ok)
	assert.Equal(t, []string{"Kitchen", "Living Room"}, c.Areas())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"Zones": [`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"Zones": [{"ID": "abc"}]}`))
	assert.Error(t, err)
}

func TestZones_SortedByID(t *testing.T) {
	assert.Equal(t, []int{5, 27, 30, 40, 41}, IDs(sample(t).Zones()))
}

func TestByArea(t *testing.T) {
	groups := sample(t).ByArea()

	require.Len(t, groups, 3)
	assert.Equal(t, "Kitchen", groups[0].Area)
	assert.Equal(t, []int{27, 30}, IDs(groups[0].Zones))
	assert.Equal(t, "Living Room", groups[1].Area)
	assert.Equal(t, UnknownArea, groups[2].Area)
	assert.Equal(t, []int{40}, IDs(groups[2].Zones))
}

func TestArea_CaseInsensitive(t *testing.T) {
	c := sample(t)
	assert.Equal(t, []int{27, 30}, IDs(c.Area("kitchen")))
	assert.Empty(t, c.Area("garage"))
}

func TestFindByName(t *testing.T) {
	c := sample(t)
	assert.Equal(t, []int{27}, IDs(c.FindByName("cans")))
	assert.Equal(t, []int{5, 27, 30, 40, 41}, IDs(c.FindByName("")))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
