// Package fitmsg decodes FIT binary recordings into a flat list of named messages
// and projects the pieces the training pipeline needs: power samples from record
// messages and the structured steps of a planned workout.
package fitmsg

import "time"

// Header stores parsed FIT header values.
type Header struct {
	Size            uint8  `json:"size"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ProfileVersion  uint16 `json:"profile_version"`
	DataSize        uint32 `json:"data_size"`
	DataType        string `json:"data_type"`
}

// CRCCheck describes CRC validation results.
type CRCCheck struct {
	Present     bool   `json:"present"`
	StoredHex   string `json:"stored_hex,omitempty"`
	ComputedHex string `json:"computed_hex,omitempty"`
	Valid       bool   `json:"valid"`
}

// FileID is a convenience projection from the file_id message.
type FileID struct {
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	TimeCreated  string `json:"time_created,omitempty"`
	SerialNumber uint32 `json:"serial_number,omitempty"`
}

// File is a decoded FIT stream. Messages keep file order.
type File struct {
	Header        Header    `json:"header"`
	HeaderCRC     CRCCheck  `json:"header_crc"`
	FileCRC       CRCCheck  `json:"file_crc"`
	FileID        *FileID   `json:"file_id,omitempty"`
	SHA256        string    `json:"sha256"`
	SizeBytes     int64     `json:"size_bytes"`
	Definitions   int       `json:"definition_count"`
	LeftoverBytes int64     `json:"leftover_bytes"`
	Messages      []Message `json:"-"`
}

// Message is one FIT data message with resolved field names.
type Message struct {
	Index      int        `json:"index"`
	FileOffset int64      `json:"file_offset"`
	Num        uint16     `json:"global_num"`
	Name       string     `json:"name"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Fields     []Field    `json:"fields"`
}

// Field is a decoded field. Value holds the scaled value when the profile
// defines a scale, a time.Time for timestamps, and the raw decoded value
// otherwise (a []any for arrays).
type Field struct {
	Num                uint8  `json:"num"`
	Name               string `json:"name"`
	Units              string `json:"units,omitempty"`
	BaseType           string `json:"base_type"`
	Value              any    `json:"value"`
	Invalid            bool   `json:"invalid,omitempty"`
	Developer          bool   `json:"developer,omitempty"`
	DeveloperDataIndex uint8  `json:"developer_data_index,omitempty"`
}

// Field returns the first field with the given name.
func (m Message) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNum returns the standard (non developer) field with the given number.
func (m Message) FieldNum(num uint8) (Field, bool) {
	for _, f := range m.Fields {
		if !f.Developer && f.Num == num {
			return f, true
		}
	}
	return Field{}, false
}

// MessagesNamed returns the data messages with the given global number.
func (f *File) MessagesNamed(num uint16) []Message {
	out := make([]Message, 0)
	for _, m := range f.Messages {
		if m.Num == num {
			out = append(out, m)
		}
	}
	return out
}

// Warnings lists parse quality problems worth logging.
func (f *File) Warnings() []string {
	var out []string
	if f.HeaderCRC.Present && !f.HeaderCRC.Valid {
		out = append(out, "header CRC mismatch")
	}
	if f.FileCRC.Present && !f.FileCRC.Valid {
		out = append(out, "file CRC mismatch")
	}
	if f.LeftoverBytes > 0 {
		out = append(out, "trailing bytes after FIT data")
	}
	return out
}
