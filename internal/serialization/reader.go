package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Reader gives access to a .born file held in memory (read fully or mmap'd).
// Tensor data is copied out on access, so a Reader's buffer may be released after use.
type Reader struct {
	data       []byte
	header     Header
	headerJSON []byte
	flags      uint32
	version    uint32
	dataOffset int64
	dataSize   int64
	checksum   [32]byte
}

// ReaderOptions configures NewReader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewReader parses and validates the header of a .born file.
func NewReader(data []byte, opts ReaderOptions) (*Reader, error) {
	r := &Reader{data: data}
	if err := r.parseHeader(); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if r.version == FormatVersionV2 && !opts.SkipChecksumValidation {
		computed := ComputeChecksum(r.data[r.dataOffset : r.dataOffset+r.dataSize])
		if err := ValidateChecksum(computed, r.checksum); err != nil {
			return nil, err
		}
	}

	if err := ValidateHeader(&r.header, r.dataSize, opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	size := int64(len(r.data))
	if size < PreambleSizeV1 {
		return fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", size, PreambleSizeV1)
	}
	if string(r.data[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}

	r.version = binary.LittleEndian.Uint32(r.data[4:8])
	r.flags = binary.LittleEndian.Uint32(r.data[8:12])

	var headerSize uint64
	var jsonOffset int64
	switch r.version {
	case FormatVersion:
		headerSize = binary.LittleEndian.Uint64(r.data[12:20])
		jsonOffset = PreambleSizeV1
	case FormatVersionV2:
		if size < FixedHeaderSizeV2 {
			return fmt.Errorf("file too small for v2: %d bytes (minimum %d bytes required)", size, FixedHeaderSizeV2)
		}
		headerSize = binary.LittleEndian.Uint64(r.data[16:24])
		dataSize := binary.LittleEndian.Uint64(r.data[24:32])
		if dataSize > math.MaxInt64 {
			return fmt.Errorf("data size too large: %d", dataSize)
		}
		r.dataSize = int64(dataSize)
		copy(r.checksum[:], r.data[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])
		jsonOffset = FixedHeaderSizeV2
	default:
		return fmt.Errorf("%w: got %d, expected %d or %d", ErrUnsupportedVersion, r.version, FormatVersion, FormatVersionV2)
	}

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerEnd := jsonOffset + int64(headerSize)
	if headerEnd > size {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, size)
	}

	r.headerJSON = r.data[jsonOffset:headerEnd]
	if err := json.Unmarshal(r.headerJSON, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	r.dataOffset = alignedOffset(headerEnd)
	if r.dataOffset > size {
		r.dataOffset = size
	}
	if r.version == FormatVersion {
		r.dataSize = size - r.dataOffset
	} else if r.dataSize > size-r.dataOffset {
		return fmt.Errorf("data section truncated: need %d bytes, file has %d", r.dataOffset+r.dataSize, size)
	}
	return nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// HeaderJSON returns the raw header bytes as stored in the file.
func (r *Reader) HeaderJSON() []byte {
	return r.headerJSON
}

// Version returns the on-disk format version.
func (r *Reader) Version() uint32 {
	return r.version
}

// Flags returns the format flags.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// TensorNames returns the names of all tensors in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns the header entry of a tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for i := range r.header.Tensors {
		if r.header.Tensors[i].Name == name {
			meta := r.header.Tensors[i]
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// Tensor copies one tensor out of the data section.
func (r *Reader) Tensor(name string) (*Tensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if meta.Offset < 0 || meta.Size < 0 || meta.Size > r.dataSize-meta.Offset {
		return nil, &ValidationError{Type: "out_of_bounds", Tensor: name, Details: "tensor extends beyond data section"}
	}
	start := r.dataOffset + meta.Offset
	data := make([]byte, meta.Size)
	copy(data, r.data[start:start+meta.Size])
	return NewTensor(meta.Name, meta.DType, meta.Shape, data)
}
