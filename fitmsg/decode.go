package fitmsg

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/tormoder/fit/dyncrc16"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14

	timestampFieldNum = 253
)

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

type baseSpec struct {
	name string
	size int
}

var baseSpecs = map[baseType]baseSpec{
	baseEnum:    {"enum", 1},
	baseSint8:   {"sint8", 1},
	baseUint8:   {"uint8", 1},
	baseSint16:  {"sint16", 2},
	baseUint16:  {"uint16", 2},
	baseSint32:  {"sint32", 4},
	baseUint32:  {"uint32", 4},
	baseString:  {"string", 1},
	baseFloat32: {"float32", 4},
	baseFloat64: {"float64", 8},
	baseUint8z:  {"uint8z", 1},
	baseUint16z: {"uint16z", 2},
	baseUint32z: {"uint32z", 4},
	baseByte:    {"byte", 1},
	baseSint64:  {"sint64", 8},
	baseUint64:  {"uint64", 8},
	baseUint64z: {"uint64z", 8},
}

func (bt baseType) String() string {
	if spec, ok := baseSpecs[bt]; ok {
		return spec.name
	}
	return fmt.Sprintf("unknown_0x%02X", uint8(bt))
}

type fieldDef struct {
	num  uint8
	size uint8
	base baseType
}

type devFieldDef struct {
	num     uint8
	size    uint8
	dataIdx uint8
}

type localDef struct {
	globalNum uint16
	arch      binary.ByteOrder
	fields    []fieldDef
	devFields []devFieldDef
}

// devKey identifies a developer field across field_description messages.
type devKey struct {
	dataIdx uint8
	num     uint8
}

type devDescription struct {
	name  string
	units string
	base  baseType
}

type decoder struct {
	dataOffset     int
	data           []byte
	pos            int
	definitions    map[uint8]localDef
	devFields      map[devKey]devDescription
	lastTimestamp  uint32
	lastTimeOffset int32
	definitionSeen int
	messages       []Message
}

// Decode parses a complete FIT stream held in memory. A CRC mismatch is reported on
// the returned File and does not fail decoding; structural problems do.
func Decode(data []byte) (*File, error) {
	if len(data) < headerSizeNoCRC+2 {
		return nil, fmt.Errorf("fit file too short: %d bytes", len(data))
	}

	header, headerCRC, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	dataStart := int(header.Size)
	dataEnd := dataStart + int(header.DataSize)
	if len(data) < dataEnd+2 {
		return nil, fmt.Errorf("fit file truncated: have %d bytes, need at least %d", len(data), dataEnd+2)
	}

	stored := binary.LittleEndian.Uint16(data[dataEnd : dataEnd+2])
	computed := dyncrc16.Checksum(data[:dataEnd])
	fileCRC := CRCCheck{
		Present:     true,
		StoredHex:   fmt.Sprintf("0x%04X", stored),
		ComputedHex: fmt.Sprintf("0x%04X", computed),
		Valid:       stored == computed,
	}

	d := &decoder{
		dataOffset:  dataStart,
		data:        data[dataStart:dataEnd],
		definitions: make(map[uint8]localDef),
		devFields:   make(map[devKey]devDescription),
	}
	if err := d.run(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	f := &File{
		Header:        header,
		HeaderCRC:     headerCRC,
		FileCRC:       fileCRC,
		SHA256:        hex.EncodeToString(sum[:]),
		SizeBytes:     int64(len(data)),
		Definitions:   d.definitionSeen,
		LeftoverBytes: int64(len(data) - dataEnd - 2),
		Messages:      d.messages,
	}
	f.FileID = projectFileID(data)
	return f, nil
}

// CRCValid reports whether every CRC present in the file matched.
func (f *File) CRCValid() bool {
	return f.FileCRC.Valid && (!f.HeaderCRC.Present || f.HeaderCRC.Valid)
}

func decodeHeader(data []byte) (Header, CRCCheck, error) {
	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return Header{}, CRCCheck{}, fmt.Errorf("invalid fit header size: %d", size)
	}

	h := Header{
		Size:            size,
		ProtocolVersion: data[1],
		ProfileVersion:  binary.LittleEndian.Uint16(data[2:4]),
		DataSize:        binary.LittleEndian.Uint32(data[4:8]),
		DataType:        string(data[8:12]),
	}
	if h.DataType != ".FIT" {
		return Header{}, CRCCheck{}, fmt.Errorf("invalid fit data type in header: %q", h.DataType)
	}

	crc := CRCCheck{Present: size == headerSizeCRC, Valid: true}
	if crc.Present {
		stored := binary.LittleEndian.Uint16(data[12:14])
		crc.StoredHex = fmt.Sprintf("0x%04X", stored)
		// a zero header CRC means the writer skipped it
		if stored != 0 {
			computed := dyncrc16.Checksum(data[:12])
			crc.ComputedHex = fmt.Sprintf("0x%04X", computed)
			crc.Valid = stored == computed
		}
	}
	return h, crc, nil
}

func (d *decoder) read(n int, what string, start int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, fmt.Errorf("%s record truncated at byte %d", what, d.dataOffset+start)
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) run() error {
	record := 0
	for d.pos < len(d.data) {
		record++
		start := d.pos
		headerByte := d.data[d.pos]
		d.pos++

		switch {
		case headerByte&compressedHeaderMask == compressedHeaderMask:
			local := (headerByte & compressedLocalMesgNumMask) >> 5
			def, ok := d.definitions[local]
			if !ok {
				return fmt.Errorf("missing definition for compressed data message local=%d record=%d", local, record)
			}
			if err := d.dataMessage(start, headerByte, def, true); err != nil {
				return err
			}
		case headerByte&mesgDefinitionMask == mesgDefinitionMask:
			if err := d.definition(start, record, headerByte); err != nil {
				return err
			}
		default:
			local := headerByte & localMesgNumMask
			def, ok := d.definitions[local]
			if !ok {
				return fmt.Errorf("missing definition for data message local=%d record=%d", local, record)
			}
			if err := d.dataMessage(start, headerByte, def, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *decoder) definition(start, record int, headerByte uint8) error {
	fixed, err := d.read(5, "definition", start)
	if err != nil {
		return err
	}

	var arch binary.ByteOrder
	switch fixed[1] {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		return fmt.Errorf("invalid architecture byte %d at record %d", fixed[1], record)
	}

	def := localDef{
		globalNum: arch.Uint16(fixed[2:4]),
		arch:      arch,
		fields:    make([]fieldDef, 0, int(fixed[4])),
	}
	for i := 0; i < int(fixed[4]); i++ {
		raw, err := d.read(3, "definition", start)
		if err != nil {
			return err
		}
		def.fields = append(def.fields, fieldDef{num: raw[0], size: raw[1], base: decompressBaseType(raw[2])})
	}

	if headerByte&devDataMask == devDataMask {
		countRaw, err := d.read(1, "definition", start)
		if err != nil {
			return err
		}
		for i := 0; i < int(countRaw[0]); i++ {
			raw, err := d.read(3, "definition", start)
			if err != nil {
				return err
			}
			def.devFields = append(def.devFields, devFieldDef{num: raw[0], size: raw[1], dataIdx: raw[2]})
		}
	}

	d.definitions[headerByte&localMesgNumMask] = def
	d.definitionSeen++
	return nil
}

func (d *decoder) dataMessage(start int, headerByte uint8, def localDef, compressed bool) error {
	msg := Message{
		Index:      len(d.messages),
		FileOffset: int64(d.dataOffset + start),
		Num:        def.globalNum,
		Name:       messageName(def.globalNum),
		Fields:     make([]Field, 0, len(def.fields)+len(def.devFields)),
	}

	if compressed && d.lastTimestamp != 0 {
		offset := int32(headerByte & compressedTimeMask)
		d.lastTimestamp += uint32((offset - d.lastTimeOffset) & compressedTimeMask)
		d.lastTimeOffset = offset
		ts := fitTimestampToUTC(d.lastTimestamp)
		msg.Timestamp = &ts
	}

	for _, fd := range def.fields {
		raw, err := d.read(int(fd.size), "data", start)
		if err != nil {
			return err
		}
		value, invalid := decodeValue(raw, fd.base, def.arch)
		field := Field{Num: fd.num, BaseType: fd.base.String(), Value: value, Invalid: invalid}

		if fd.num == timestampFieldNum {
			if ts, ok := value.(uint32); ok && !invalid {
				d.lastTimestamp = ts
				d.lastTimeOffset = int32(ts & compressedTimeMask)
				utc := fitTimestampToUTC(ts)
				msg.Timestamp = &utc
			}
		}
		applySemantics(def.globalNum, &field)
		msg.Fields = append(msg.Fields, field)
	}

	for _, dd := range def.devFields {
		raw, err := d.read(int(dd.size), "data", start)
		if err != nil {
			return err
		}
		msg.Fields = append(msg.Fields, d.developerField(raw, dd, def.arch))
	}

	if def.globalNum == mesgNumFieldDescription {
		d.describe(msg)
	}
	d.messages = append(d.messages, msg)
	return nil
}

func (d *decoder) developerField(raw []byte, dd devFieldDef, arch binary.ByteOrder) Field {
	field := Field{
		Num:                dd.num,
		Developer:          true,
		DeveloperDataIndex: dd.dataIdx,
		BaseType:           baseByte.String(),
	}
	desc, ok := d.devFields[devKey{dd.dataIdx, dd.num}]
	if !ok {
		field.Name = fmt.Sprintf("developer_%d_%d", dd.dataIdx, dd.num)
		field.Value = bytesToInts(raw)
		return field
	}
	field.Name = desc.name
	field.Units = desc.units
	field.BaseType = desc.base.String()
	field.Value, field.Invalid = decodeValue(raw, desc.base, arch)
	return field
}

// describe records a field_description so later developer fields decode by name.
func (d *decoder) describe(msg Message) {
	idx, ok1 := uintField(msg, 0)
	num, ok2 := uintField(msg, 1)
	base, ok3 := uintField(msg, 2)
	if !ok1 || !ok2 || !ok3 {
		return
	}
	desc := devDescription{base: decompressBaseType(byte(base))}
	if f, ok := msg.FieldNum(3); ok {
		desc.name, _ = f.Value.(string)
	}
	if f, ok := msg.FieldNum(8); ok {
		desc.units, _ = f.Value.(string)
	}
	if desc.name == "" {
		desc.name = fmt.Sprintf("developer_%d_%d", idx, num)
	}
	d.devFields[devKey{uint8(idx), uint8(num)}] = desc
}

// decodeValue returns a scalar for single element fields and []any for arrays. A field
// is invalid when every element holds its base type's invalid sentinel.
func decodeValue(raw []byte, bt baseType, arch binary.ByteOrder) (any, bool) {
	switch bt {
	case baseString:
		s := nullTerminated(raw)
		return s, s == ""
	case baseByte:
		return bytesToInts(raw), allBytes(raw, 0xFF)
	}

	spec, ok := baseSpecs[bt]
	if !ok || len(raw)%spec.size != 0 {
		return bytesToInts(raw), false
	}

	count := len(raw) / spec.size
	if count == 1 {
		return decodeSingle(raw, bt, arch)
	}
	values := make([]any, 0, count)
	invalid := 0
	for i := 0; i < count; i++ {
		v, bad := decodeSingle(raw[i*spec.size:(i+1)*spec.size], bt, arch)
		values = append(values, v)
		if bad {
			invalid++
		}
	}
	return values, invalid == count
}

func decodeSingle(raw []byte, bt baseType, arch binary.ByteOrder) (any, bool) {
	switch bt {
	case baseEnum, baseUint8:
		return raw[0], raw[0] == 0xFF
	case baseSint8:
		v := int8(raw[0])
		return v, v == 0x7F
	case baseSint16:
		v := int16(arch.Uint16(raw))
		return v, v == 0x7FFF
	case baseUint16:
		v := arch.Uint16(raw)
		return v, v == 0xFFFF
	case baseSint32:
		v := int32(arch.Uint32(raw))
		return v, v == 0x7FFFFFFF
	case baseUint32:
		v := arch.Uint32(raw)
		return v, v == 0xFFFFFFFF
	case baseFloat32:
		bits := arch.Uint32(raw)
		return float64(math.Float32frombits(bits)), bits == 0xFFFFFFFF
	case baseFloat64:
		bits := arch.Uint64(raw)
		return math.Float64frombits(bits), bits == 0xFFFFFFFFFFFFFFFF
	case baseUint8z:
		return raw[0], raw[0] == 0
	case baseUint16z:
		v := arch.Uint16(raw)
		return v, v == 0
	case baseUint32z:
		v := arch.Uint32(raw)
		return v, v == 0
	case baseSint64:
		v := int64(arch.Uint64(raw))
		return v, v == 0x7FFFFFFFFFFFFFFF
	case baseUint64:
		v := arch.Uint64(raw)
		return v, v == 0xFFFFFFFFFFFFFFFF
	case baseUint64z:
		v := arch.Uint64(raw)
		return v, v == 0
	default:
		return bytesToInts(raw), false
	}
}

func fitTimestampToUTC(ts uint32) time.Time {
	return fitEpoch.Add(time.Duration(ts) * time.Second)
}

var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

func decompressBaseType(b byte) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}

func nullTerminated(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

func allBytes(raw []byte, value byte) bool {
	if len(raw) == 0 {
		return false
	}
	for _, b := range raw {
		if b != value {
			return false
		}
	}
	return true
}

func bytesToInts(raw []byte) []int {
	out := make([]int, len(raw))
	for i := range raw {
		out[i] = int(raw[i])
	}
	return out
}
