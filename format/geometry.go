// Package format provides FormatVolume, the mirror image of fat.Mount: it
// writes a fresh MBR, BPB, FAT copies, and root directory to a blank image.
// Not part of the core engine, but the kind of ambient tooling a
// real driver repo carries (soypat/fat's format.go,
// ostafen/digler's recovery tooling).
package format

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Geometry describes one named, standard FAT media layout: the BPB-level
// defaults FormatVolume uses when the caller asks for a preset by name
// instead of spelling out every field, mirroring disks/disks.go's
// DiskGeometry table (itself grounded on
// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats).
type Geometry struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	BytesPerSector    uint   `csv:"bytes_per_sector"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	TotalSectors      uint   `csv:"total_sectors"`
	ReservedSectors   uint   `csv:"reserved_sectors"`
	NumFATs           uint   `csv:"num_fats"`
	RootEntryCount    uint   `csv:"root_entry_count"`
	IsFAT32           bool   `csv:"is_fat32"`
}

// TotalSizeBytes gives the minimum size, in bytes, of an image using this
// geometry.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.BytesPerSector) * int64(g.TotalSectors)
}

//go:embed geometries.csv
var rawGeometriesCSV string

var geometries map[string]Geometry

// PredefinedGeometry looks up a named standard FAT media geometry (e.g.
// "fat16-1.44mb", "fat32-cf-128mb").
func PredefinedGeometry(slug string) (Geometry, error) {
	g, ok := geometries[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
	}
	return g, nil
}

func init() {
	geometries = make(map[string]Geometry)
	reader := strings.NewReader(rawGeometriesCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := geometries[row.Slug]; exists {
			return fmt.Errorf("duplicate definition for disk geometry %q", row.Slug)
		}
		geometries[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}
