package spdu

import (
	"crypto/des"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gk2a/xritrx/internal/keytable"
)

// DecryptBlocks runs DES-ECB over data, an exact multiple of the DES block
// size (8 bytes). This is the bare cipher primitive described in the
// spec: no mode chaining, no IV — block alignment is this package's
// caller's responsibility. Go's standard library ships DES directly
// (crypto/des), so no third-party cipher package is needed here.
func DecryptBlocks(key [keytable.KeySize]byte, data []byte) ([]byte, error) {
	if len(data)%des.BlockSize != 0 {
		return nil, fmt.Errorf("spdu: data length %d not a multiple of DES block size %d", len(data), des.BlockSize)
	}
	block, err := des.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("spdu: new DES cipher: %w", err)
	}

	out := make([]byte, len(data))
	for off := 0; off < len(data); off += des.BlockSize {
		block.Decrypt(out[off:off+des.BlockSize], data[off:off+des.BlockSize])
	}
	return out, nil
}

// Decrypt takes a TP_File payload interpreted as xRIT bytes and returns
// plaintext xRIT bytes, per the S_PDU algorithm:
//  1. Parse the primary header and slice off the header and data fields.
//  2. Walk the header field for the key header (type 7); its last 16 bits
//     are the table-lookup key index.
//  3. An empty key table or a zero key index means the data field is
//     already plaintext.
//  4. Otherwise look up the key by index; an unknown index is logged and
//     treated as unencrypted (the file is preserved but left undecrypted).
//  5. A data field not aligned to the 8-byte DES block boundary is padded
//     with zero bytes before decryption, then truncated back afterward.
//  6. The key header's index field is zeroed in the output so downstream
//     consumers see the file as unencrypted.
func Decrypt(data []byte, keys *keytable.Table, log *slog.Logger) ([]byte, error) {
	if log == nil {
		log = slog.Default()
	}

	ph, err := ParsePrimaryHeader(data)
	if err != nil {
		return nil, err
	}
	if int(ph.TotalHeaderLength) > len(data) {
		return nil, fmt.Errorf("spdu: total header length %d exceeds buffer of %d bytes", ph.TotalHeaderLength, len(data))
	}
	headerField := append([]byte(nil), data[:ph.TotalHeaderLength]...)
	dataEnd := uint64(ph.TotalHeaderLength) + ph.DataLength
	if dataEnd > uint64(len(data)) {
		return nil, fmt.Errorf("spdu: data field end %d exceeds buffer of %d bytes", dataEnd, len(data))
	}
	dataField := data[ph.TotalHeaderLength:dataEnd]

	keyOffset := FindHeaderRecord(headerField, HeaderTypeKey)
	var keyIndex uint16
	if keyOffset >= 0 && keyOffset+7 <= len(headerField) {
		index32 := binary.BigEndian.Uint32(headerField[keyOffset+3 : keyOffset+7])
		keyIndex = uint16(index32) // last 16 bits are the significant index
	}

	if keys.Empty() || keyIndex == 0 {
		return append(headerField, dataField...), nil
	}

	key, ok := keys.Get(keyIndex)
	if !ok {
		log.Warn("unknown encryption key index", "index", keyIndex)
		return append(headerField, dataField...), nil
	}

	mod := len(dataField) % 8
	padded := dataField
	if mod != 0 {
		log.Warn("S_PDU payload not aligned to DES ECB block boundary", "length", len(dataField))
		padded = make([]byte, len(dataField)+(8-mod))
		copy(padded, dataField)
	}

	decrypted, err := DecryptBlocks(key, padded)
	if err != nil {
		return nil, err
	}
	decrypted = decrypted[:len(dataField)]

	if keyOffset >= 0 && keyOffset+7 <= len(headerField) {
		binary.BigEndian.PutUint32(headerField[keyOffset+3:keyOffset+7], 0)
	}

	return append(headerField, decrypted...), nil
}
