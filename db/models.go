package db

import (
	"gorm.io/gorm"
)

// DownloadRecord is one finished download attempt, attributed or not.
type DownloadRecord struct {
	gorm.Model
	AttemptID     string `gorm:"uniqueIndex"` // Correlator attempt ID
	URL           string // Requested URL
	ModExternalID *int   // Nil when the download could not be attributed
	FileID        *int   `gorm:"index"`
	Filename      string // Name on disk
	Path          string // Final save path
	State         string // completed, cancelled or interrupted
	Attributed    bool
}

// Succeeded reports whether the attempt produced an installed file.
func (r DownloadRecord) Succeeded() bool {
	return r.Attributed && r.State == "completed"
}
