// Package spdu implements the CCSDS Session PDU decryption stage and the
// xRIT file format it produces: a typed-record header field followed by a
// raw data field. The header-record walk (type, length) below is a
// bounds-checked, offset-advancing loop: stop as soon as the buffer can't
// support the next record rather than reading past its end.
package spdu

import (
	"encoding/binary"
	"fmt"
)

// xRIT primary header record type (always present, always type 0).
const (
	HeaderTypePrimary        = 0
	HeaderTypeAnnotationText = 4
	HeaderTypeKey            = 7
)

// xRIT file types, per the primary header's file_type byte.
const (
	FileTypeImageData            = 0
	FileTypeGTSMessage           = 1
	FileTypeAlphanumericText     = 2
	FileTypeEncryptionKeyMessage = 3
	FileTypeAdditionalData       = 255
)

// PrimaryHeader is the fixed 16-byte xRIT primary header (record type 0).
type PrimaryHeader struct {
	Type              uint8
	RecordLength      uint16
	FileType          uint8
	TotalHeaderLength uint32
	DataLength        uint64
}

const primaryHeaderSize = 16

// ParsePrimaryHeader parses the fixed 16-byte xRIT primary header.
func ParsePrimaryHeader(data []byte) (*PrimaryHeader, error) {
	if len(data) < primaryHeaderSize {
		return nil, fmt.Errorf("spdu: primary header too short (%d bytes)", len(data))
	}
	h := &PrimaryHeader{
		Type:              data[0],
		RecordLength:      binary.BigEndian.Uint16(data[1:3]),
		FileType:          data[3],
		TotalHeaderLength: binary.BigEndian.Uint32(data[4:8]),
		DataLength:        binary.BigEndian.Uint64(data[8:16]),
	}
	return h, nil
}

// FindHeaderRecord walks the (type, length) header records in headerField
// looking for recordType, returning the byte offset at which it starts
// (including its own 3-byte type+length prefix) or -1 if not present
// before the buffer is exhausted.
func FindHeaderRecord(headerField []byte, recordType uint8) int {
	offset := 0
	for {
		if offset > len(headerField)-3 {
			return -1
		}
		typ := headerField[offset]
		length := int(binary.BigEndian.Uint16(headerField[offset+1 : offset+3]))
		if typ == recordType {
			return offset
		}
		if length == 0 {
			return -1 // malformed: would loop forever
		}
		offset += length
	}
}

// XRIT is a fully decrypted xRIT file: a header field and a data field.
type XRIT struct {
	Primary     PrimaryHeader
	HeaderField []byte
	DataField   []byte
	// FileName is the canonical name parsed from the annotation text
	// header (record type 4), used to classify and route the product.
	FileName string
}

// Parse parses plaintext xRIT bytes (the output of Decrypt) into header
// and data fields, extracting the annotation text file name.
func Parse(data []byte) (*XRIT, error) {
	ph, err := ParsePrimaryHeader(data)
	if err != nil {
		return nil, err
	}
	if int(ph.TotalHeaderLength) > len(data) {
		return nil, fmt.Errorf("spdu: total header length %d exceeds buffer of %d bytes", ph.TotalHeaderLength, len(data))
	}
	headerField := data[:ph.TotalHeaderLength]
	dataEnd := uint64(ph.TotalHeaderLength) + ph.DataLength
	if dataEnd > uint64(len(data)) {
		return nil, fmt.Errorf("spdu: data field end %d exceeds buffer of %d bytes", dataEnd, len(data))
	}
	dataField := data[ph.TotalHeaderLength:dataEnd]

	offset := FindHeaderRecord(headerField, HeaderTypeAnnotationText)
	if offset < 0 {
		return nil, fmt.Errorf("spdu: no annotation text header (type %d) found", HeaderTypeAnnotationText)
	}
	length := int(binary.BigEndian.Uint16(headerField[offset+1 : offset+3]))
	if offset+length > len(headerField) {
		return nil, fmt.Errorf("spdu: annotation text header exceeds header field")
	}
	name := string(headerField[offset+3 : offset+length])

	return &XRIT{
		Primary:     *ph,
		HeaderField: headerField,
		DataField:   dataField,
		FileName:    name,
	}, nil
}
