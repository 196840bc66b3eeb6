// Package container implements the single-file, multi-collection binary
// on-disk format described in spec.md §6: a 64-byte global header, a flat
// directory of per-collection {name, offset, length} entries, and one
// self-headered payload per collection.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/modb/modb/internal/codec"
	"github.com/modb/modb/internal/modberrors"
	"github.com/modb/modb/internal/schema"
)

// GlobalMagic is the 4-byte magic word "MODB" at the start of a
// container file.
const GlobalMagic uint32 = 0x4D4F4442

// PayloadMagic is the 4-byte magic word "MOCK" at the start of each
// collection payload.
const PayloadMagic uint32 = 0x4D4F434B

const (
	globalHeaderSize  = 64
	payloadHeaderSize = 64
	formatVersion     = 1
)

// CollectionPayload is one collection's schema plus every one of its
// records, in the shape the container format persists.
type CollectionPayload struct {
	Name    string
	Schema  schema.Schema
	Records []RecordEntry
}

// RecordEntry is one record as persisted — id plus field values.
type RecordEntry struct {
	ID    string
	Value map[string]any
}

// directoryEntry locates one collection's payload within the file.
type directoryEntry struct {
	name   string
	offset uint64
	length uint64
}

// Write serializes every collection payload to path as a single
// container file: a global header, a directory, and then the payloads
// themselves in the directory's order. Collections are written in
// sorted-name order so that two writes of the same logical data produce
// byte-identical files (spec.md §8 round-trip property).
func Write(path string, payloads []CollectionPayload) error {
	sorted := make([]CollectionPayload, len(payloads))
	copy(sorted, payloads)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	encoded := make([][]byte, len(sorted))
	for i, p := range sorted {
		buf, err := encodePayload(p)
		if err != nil {
			return err
		}
		encoded[i] = buf
	}

	var dir bytes.Buffer
	if err := binary.Write(&dir, binary.LittleEndian, uint32(len(sorted))); err != nil {
		return err
	}
	// Directory entries follow the global header; payloads follow the
	// directory. Offsets are computed in a first pass once the
	// directory's own size is known.
	dirEntriesSize := 0
	for _, p := range sorted {
		dirEntriesSize += 4 + len(p.Name) + 8 + 8
	}
	offset := uint64(globalHeaderSize) + 4 + uint64(dirEntriesSize)
	entries := make([]directoryEntry, len(sorted))
	for i, p := range sorted {
		entries[i] = directoryEntry{name: p.Name, offset: offset, length: uint64(len(encoded[i]))}
		offset += uint64(len(encoded[i]))
	}
	for _, e := range entries {
		if err := writeDirEntry(&dir, e); err != nil {
			return err
		}
	}

	var out bytes.Buffer
	if err := writeGlobalHeader(&out, uint32(len(sorted))); err != nil {
		return err
	}
	out.Write(dir.Bytes())
	for _, buf := range encoded {
		out.Write(buf)
	}

	return os.WriteFile(path, out.Bytes(), 0o644)
}

// Read parses a container file written by Write.
func Read(path string) ([]CollectionPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &modberrors.IOError{Op: "read container", Err: err}
	}
	if len(data) < globalHeaderSize {
		return nil, &modberrors.FormatError{Reason: "file shorter than global header"}
	}
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated global header"}
	}
	if magic != GlobalMagic {
		return nil, &modberrors.FormatError{Reason: fmt.Sprintf("bad global magic: got 0x%X, want 0x%X", magic, GlobalMagic)}
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated global header"}
	}
	if version != formatVersion {
		return nil, &modberrors.FormatError{Reason: fmt.Sprintf("unsupported format version %d", version)}
	}
	var collCount uint32
	if err := binary.Read(r, binary.LittleEndian, &collCount); err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated global header"}
	}
	// Skip the remainder of the fixed 64-byte global header (reserved).
	if _, err := r.Seek(globalHeaderSize, 0); err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated global header"}
	}

	var dirLen uint32
	if err := binary.Read(r, binary.LittleEndian, &dirLen); err != nil {
		return nil, &modberrors.FormatError{Reason: "truncated directory length"}
	}
	entries := make([]directoryEntry, dirLen)
	for i := uint32(0); i < dirLen; i++ {
		e, err := readDirEntry(r)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	payloads := make([]CollectionPayload, 0, len(entries))
	for _, e := range entries {
		if uint64(len(data)) < e.offset+e.length {
			return nil, &modberrors.FormatError{Reason: fmt.Sprintf("payload %q extends past end of file", e.name)}
		}
		p, err := decodePayload(data[e.offset : e.offset+e.length])
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func writeGlobalHeader(buf *bytes.Buffer, collCount uint32) error {
	if err := binary.Write(buf, binary.LittleEndian, GlobalMagic); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, collCount); err != nil {
		return err
	}
	pad := make([]byte, globalHeaderSize-12)
	buf.Write(pad)
	return nil
}

func writeDirEntry(buf *bytes.Buffer, e directoryEntry) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(e.name))); err != nil {
		return err
	}
	buf.WriteString(e.name)
	if err := binary.Write(buf, binary.LittleEndian, e.offset); err != nil {
		return err
	}
	return binary.Write(buf, binary.LittleEndian, e.length)
}

func readDirEntry(r *bytes.Reader) (directoryEntry, error) {
	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return directoryEntry{}, &modberrors.FormatError{Reason: "truncated directory entry"}
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return directoryEntry{}, &modberrors.FormatError{Reason: "truncated directory entry name"}
	}
	var offset, length uint64
	if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
		return directoryEntry{}, &modberrors.FormatError{Reason: "truncated directory entry"}
	}
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return directoryEntry{}, &modberrors.FormatError{Reason: "truncated directory entry"}
	}
	return directoryEntry{name: string(name), offset: offset, length: length}, nil
}

func encodePayload(p CollectionPayload) ([]byte, error) {
	var body bytes.Buffer
	if err := codec.EncodeSchema(&body, p.Schema); err != nil {
		return nil, err
	}
	if err := binary.Write(&body, binary.LittleEndian, uint32(len(p.Records))); err != nil {
		return nil, err
	}
	records := make([]RecordEntry, len(p.Records))
	copy(records, p.Records)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	for _, rec := range records {
		if err := codec.EncodeRecord(&body, rec.ID, rec.Value); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, PayloadMagic); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint32(len(p.Name))); err != nil {
		return nil, err
	}
	out.WriteString(p.Name)
	pad := payloadHeaderSize - 12 - len(p.Name)
	if pad < 0 {
		pad = 0
	}
	out.Write(make([]byte, pad))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func decodePayload(data []byte) (CollectionPayload, error) {
	r := bytes.NewReader(data)
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return CollectionPayload{}, &modberrors.FormatError{Reason: "truncated payload header"}
	}
	if magic != PayloadMagic {
		return CollectionPayload{}, &modberrors.FormatError{Reason: fmt.Sprintf("bad payload magic: got 0x%X, want 0x%X", magic, PayloadMagic)}
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return CollectionPayload{}, &modberrors.FormatError{Reason: "truncated payload header"}
	}
	if version != formatVersion {
		return CollectionPayload{}, &modberrors.FormatError{Reason: fmt.Sprintf("unsupported payload version %d", version)}
	}
	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return CollectionPayload{}, &modberrors.FormatError{Reason: "truncated payload header"}
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return CollectionPayload{}, &modberrors.FormatError{Reason: "truncated payload name"}
	}
	pad := payloadHeaderSize - 12 - int(nameLen)
	if pad > 0 {
		if _, err := r.Seek(int64(pad), 1); err != nil {
			return CollectionPayload{}, &modberrors.FormatError{Reason: "truncated payload header padding"}
		}
	}

	s, err := codec.DecodeSchema(r)
	if err != nil {
		return CollectionPayload{}, err
	}
	var recCount uint32
	if err := binary.Read(r, binary.LittleEndian, &recCount); err != nil {
		return CollectionPayload{}, &modberrors.FormatError{Reason: "truncated record count"}
	}
	records := make([]RecordEntry, 0, recCount)
	for i := uint32(0); i < recCount; i++ {
		id, value, err := codec.DecodeRecord(r)
		if err != nil {
			return CollectionPayload{}, err
		}
		records = append(records, RecordEntry{ID: id, Value: value})
	}

	return CollectionPayload{Name: string(name), Schema: s, Records: records}, nil
}
