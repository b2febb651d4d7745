package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// BornWriter writes checkpoints in .born format.
type BornWriter struct {
	file   *os.File
	closed bool
}

// NewBornWriter creates a new .born file writer.
func NewBornWriter(path string) (*BornWriter, error) {
	//nolint:gosec // G304: File path comes from the caller, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &BornWriter{file: file}, nil
}

// WriteCheckpoint writes tensors and header using format v2 (with SHA-256 checksum).
// Tensors are laid out in slice order.
func (w *BornWriter) WriteCheckpoint(tensors []*Tensor, header Header) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	return writeV2(w.file, tensors, header)
}

// WriteCheckpointV1 writes the legacy v1 layout (no checksum). Files written this
// way load with a deprecation warning.
func (w *BornWriter) WriteCheckpointV1(tensors []*Tensor, header Header) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	return writeV1(w.file, tensors, header)
}

// Close closes the writer and the underlying file.
func (w *BornWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteFile writes a v2 checkpoint to path.
func WriteFile(path string, tensors []*Tensor, header Header) (err error) {
	w, err := NewBornWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return w.WriteCheckpoint(tensors, header)
}

// prepareHeader fills tensor metadata and flags and returns the marshaled header and data.
func prepareHeader(tensors []*Tensor, header *Header, version int) ([]byte, []byte, uint32, error) {
	header.FormatVersion = version
	if header.BornVersion == "" {
		header.BornVersion = RuntimeVersion
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	var data bytes.Buffer
	header.Tensors = make([]TensorMeta, 0, len(tensors))
	for _, t := range tensors {
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   t.Name,
			DType:  t.DType,
			Shape:  append([]int(nil), t.Shape...),
			Offset: int64(data.Len()),
			Size:   int64(len(t.Data)),
		})
		data.Write(t.Data)
	}

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil && header.CheckpointMeta.IsCheckpoint {
		flags |= FlagHasOptimizer
	}
	if len(header.Objects) > 0 {
		flags |= FlagHasObjects
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to marshal header: %w", err)
	}
	return headerJSON, data.Bytes(), flags, nil
}

func writeV1(out io.Writer, tensors []*Tensor, header Header) error {
	headerJSON, data, flags, err := prepareHeader(tensors, &header, FormatVersion)
	if err != nil {
		return err
	}

	preamble := make([]byte, PreambleSizeV1)
	copy(preamble[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(preamble[4:8], uint32(FormatVersion))
	binary.LittleEndian.PutUint32(preamble[8:12], flags)
	binary.LittleEndian.PutUint64(preamble[12:20], uint64(len(headerJSON)))

	return writeSections(out, preamble, headerJSON, data)
}

func writeV2(out io.Writer, tensors []*Tensor, header Header) error {
	headerJSON, data, flags, err := prepareHeader(tensors, &header, FormatVersionV2)
	if err != nil {
		return err
	}

	checksum := ComputeChecksum(data)

	// 0x00 magic, 0x04 version, 0x08 flags, 0x0C reserved, 0x10 header size,
	// 0x18 data size, 0x20 SHA-256.
	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum[:])

	return writeSections(out, fixed, headerJSON, data)
}

func writeSections(out io.Writer, preamble, headerJSON, data []byte) error {
	if _, err := out.Write(preamble); err != nil {
		return fmt.Errorf("failed to write preamble: %w", err)
	}
	if _, err := out.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	pos := int64(len(preamble) + len(headerJSON))
	if padding := alignedOffset(pos) - pos; padding > 0 {
		if _, err := out.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}
