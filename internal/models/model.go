package models

import (
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Primary display modes. A decimal file index is also accepted.
const (
	DisplayAuto  = "auto"
	DisplayPhoto = "photo"
)

// Model is an uploaded, printable 3D model with its files and photos.
type Model struct {
	ID             string                                `gorm:"primaryKey;size:36" json:"id"`
	UserID         string                                `gorm:"size:36;not null;index" json:"user_id"`
	Title          string                                `gorm:"size:200;not null" json:"title"`
	Description    string                                `gorm:"type:text" json:"description"`
	Category       string                                `gorm:"size:64;not null;index" json:"category"`
	Tags           datatypes.JSONSlice[string]           `json:"tags"`
	License        string                                `gorm:"size:64" json:"license"`
	PrintSettings  datatypes.JSONType[map[string]string] `json:"print_settings"`
	Filename       string                                `gorm:"size:255" json:"filename"`
	Filesize       int64                                 `gorm:"not null;default:0" json:"filesize"`
	FileCount      int                                   `gorm:"not null;default:0" json:"file_count"`
	Files          []ModelFile                           `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"files"`
	Photos         []ModelPhoto                          `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"photos"`
	PrimaryDisplay string                                `gorm:"size:16;not null;default:auto" json:"primary_display"`
	Downloads      int                                   `gorm:"not null;default:0;index" json:"downloads"`
	Likes          int                                   `gorm:"not null;default:0" json:"likes"`
	Views          int                                   `gorm:"not null;default:0" json:"views"`
	Featured       bool                                  `gorm:"not null;default:false" json:"featured"`
	CreatedAt      time.Time                             `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time                             `json:"updated_at"`

	Owner       *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CategoryRef *Category `gorm:"foreignKey:Category;references:ID;constraint:OnDelete:RESTRICT" json:"-"`
}

// ModelFile is one printable file belonging to a model. Position keeps the
// upload order; position 0 is the primary file.
type ModelFile struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	ModelID      string `gorm:"size:36;not null;index" json:"-"`
	Position     int    `gorm:"not null;default:0" json:"-"`
	Filename     string `gorm:"size:255;not null" json:"filename"`
	Filesize     int64  `gorm:"not null;default:0" json:"filesize"`
	OriginalName string `gorm:"size:255" json:"original_name"`
	Extension    string `gorm:"size:16" json:"extension"`
	HasColor     bool   `gorm:"not null;default:false" json:"has_color"`
}

// ModelPhoto is a preview image. It serializes as its bare filename.
type ModelPhoto struct {
	ID       uint   `gorm:"primaryKey"`
	ModelID  string `gorm:"size:36;not null;index"`
	Position int    `gorm:"not null;default:0"`
	Filename string `gorm:"size:255;not null"`
}

func (p ModelPhoto) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Filename)
}

func (p *ModelPhoto) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &p.Filename)
}

// PhotoNames returns the photo filenames in display order.
func (m *Model) PhotoNames() []string {
	names := make([]string, 0, len(m.Photos))
	for _, p := range m.Photos {
		names = append(names, p.Filename)
	}
	return names
}

// StoredFiles lists every physical file owned by the model.
func (m *Model) StoredFiles() []string {
	names := make([]string, 0, len(m.Files)+len(m.Photos))
	for _, f := range m.Files {
		names = append(names, f.Filename)
	}
	return append(names, m.PhotoNames()...)
}

// PrimaryPhoto returns the first photo, or "" when the model has none.
func (m *Model) PrimaryPhoto() string {
	if len(m.Photos) == 0 {
		return ""
	}
	return m.Photos[0].Filename
}

// Recalculate refreshes the fields derived from Files.
func (m *Model) Recalculate() {
	m.FileCount = len(m.Files)
	m.Filesize = 0
	m.Filename = ""
	for i := range m.Files {
		m.Files[i].Position = i
		m.Filesize += m.Files[i].Filesize
	}
	for i := range m.Photos {
		m.Photos[i].Position = i
	}
	if len(m.Files) > 0 {
		m.Filename = m.Files[0].Filename
	}
}

// ValidPrimaryDisplay reports whether v is "auto", "photo" or an index into files.
func ValidPrimaryDisplay(v string, fileCount int) bool {
	switch v {
	case DisplayAuto, DisplayPhoto:
		return true
	}
	idx, err := strconv.Atoi(v)
	return err == nil && idx >= 0 && idx < fileCount
}

// TagList returns the tags as a plain slice, never nil.
func (m *Model) TagList() []string {
	if m.Tags == nil {
		return []string{}
	}
	return []string(m.Tags)
}

// Settings returns the print settings map, never nil.
func (m *Model) Settings() map[string]string {
	s := m.PrintSettings.Data()
	if s == nil {
		return map[string]string{}
	}
	return s
}
